// Package features turns an ordered weekly observation series into
// supervised-learning rows.
//
// Each row carries four lag features (the values 1..4 weeks before the
// target week) and two trailing moving averages over the 3 and 7 most
// recent observations up to and including the row's own week. A row is
// produced only once four earlier observations exist.
//
// Two construction modes are provided:
//
//	rows := features.Build(obs)                 // full history, production forecasting
//	train, test := features.BuildSplit(obs, k)  // split-safe, for evaluation
//
// In split-safe mode the test rows may read lag values from the training
// period, which is history that is legitimately known before each test week.
package features
