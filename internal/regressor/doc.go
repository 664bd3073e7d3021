// Package regressor implements the fixed catalog of regression models used
// to forecast the price index.
//
// # Catalog
//
//   - KNN: k-nearest-neighbour average
//   - Random_Forest: bagged CART trees
//   - XGBoost: gradient-boosted trees grown depth-wise with L2 leaf shrinkage
//   - LightGBM: gradient-boosted trees grown leaf-wise up to a leaf budget
//
// Models are created through the factory from a Variant and an immutable
// Params value:
//
//	model, err := regressor.New(regressor.RandomForest, regressor.DefaultParams(regressor.RandomForest))
//	err = model.Fit(X, y)
//	preds, err := model.Predict(Xtest)
//
// Every model is a plain struct with exported fields, so a fitted model
// round-trips through Encode and Decode.
package regressor
