package regressor

import (
	"sort"
)

// Node is one node of a flattened regression tree. Leaves have Left < 0.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a binary regression tree stored as a node slice rooted at 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree for one feature vector
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Leaves counts the terminal nodes
func (t *Tree) Leaves() int {
	count := 0
	for _, n := range t.Nodes {
		if n.Left < 0 {
			count++
		}
	}
	return count
}

// growConfig controls tree growth.
//
// Split gain uses the second-order score sum^2/(n+lambda); with lambda=0
// this is exactly the reduction in squared error of a CART split.
type growConfig struct {
	maxDepth  int // 0 = unlimited
	minLeaf   int
	maxLeaves int // 0 = unlimited
	lambda    float64
}

type split struct {
	ok        bool
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

type frontier struct {
	node  int
	idx   []int
	depth int
	split split
}

// growTree fits a tree to target over the rows in idx. Splits are taken
// best-gain first, so with maxLeaves set the tree grows leaf-wise; without
// it every splittable node is split, which yields the depth-wise tree.
// Gains are added to importance per feature.
func growTree(X [][]float64, target []float64, idx []int, cfg growConfig, importance []float64) *Tree {
	if cfg.minLeaf < 1 {
		cfg.minLeaf = 1
	}

	t := &Tree{}
	root := t.addLeaf(leafValue(target, idx, cfg.lambda))
	open := []frontier{{node: root, idx: idx, depth: 0}}
	open[0].split = bestSplit(X, target, idx, cfg, 0)
	leaves := 1

	for cfg.maxLeaves <= 0 || leaves < cfg.maxLeaves {
		best := -1
		for i, f := range open {
			if f.split.ok && (best < 0 || f.split.gain > open[best].split.gain) {
				best = i
			}
		}
		if best < 0 {
			break
		}

		f := open[best]
		open = append(open[:best], open[best+1:]...)

		left := t.addLeaf(leafValue(target, f.split.left, cfg.lambda))
		right := t.addLeaf(leafValue(target, f.split.right, cfg.lambda))
		t.Nodes[f.node].Feature = f.split.feature
		t.Nodes[f.node].Threshold = f.split.threshold
		t.Nodes[f.node].Left = left
		t.Nodes[f.node].Right = right
		if importance != nil {
			importance[f.split.feature] += f.split.gain
		}
		leaves++

		open = append(open,
			frontier{node: left, idx: f.split.left, depth: f.depth + 1,
				split: bestSplit(X, target, f.split.left, cfg, f.depth+1)},
			frontier{node: right, idx: f.split.right, depth: f.depth + 1,
				split: bestSplit(X, target, f.split.right, cfg, f.depth+1)},
		)
	}
	return t
}

func (t *Tree) addLeaf(value float64) int {
	t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1, Value: value})
	return len(t.Nodes) - 1
}

func leafValue(target []float64, idx []int, lambda float64) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += target[i]
	}
	return sum / (float64(len(idx)) + lambda)
}

func score(sum float64, n int, lambda float64) float64 {
	return sum * sum / (float64(n) + lambda)
}

// bestSplit scans every feature for the threshold with the largest gain
func bestSplit(X [][]float64, target []float64, idx []int, cfg growConfig, depth int) split {
	best := split{}
	n := len(idx)
	if n < 2*cfg.minLeaf || (cfg.maxDepth > 0 && depth >= cfg.maxDepth) {
		return best
	}

	total := 0.0
	for _, i := range idx {
		total += target[i]
	}
	parent := score(total, n, cfg.lambda)

	sorted := make([]int, n)
	width := len(X[idx[0]])
	for f := 0; f < width; f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool {
			return X[sorted[a]][f] < X[sorted[b]][f]
		})

		leftSum := 0.0
		for k := 1; k < n; k++ {
			leftSum += target[sorted[k-1]]
			if k < cfg.minLeaf || n-k < cfg.minLeaf {
				continue
			}
			lo, hi := X[sorted[k-1]][f], X[sorted[k]][f]
			if lo == hi {
				continue
			}
			gain := score(leftSum, k, cfg.lambda) + score(total-leftSum, n-k, cfg.lambda) - parent
			if gain > 1e-12 && (!best.ok || gain > best.gain) {
				best = split{
					ok:        true,
					feature:   f,
					threshold: (lo + hi) / 2,
					gain:      gain,
					left:      append([]int(nil), sorted[:k]...),
					right:     append([]int(nil), sorted[k:]...),
				}
			}
		}
	}
	return best
}

// normalize scales importance to sum to one, in place
func normalize(importance []float64) []float64 {
	total := 0.0
	for _, v := range importance {
		total += v
	}
	if total <= 0 {
		return importance
	}
	for i := range importance {
		importance[i] /= total
	}
	return importance
}
