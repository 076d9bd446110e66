package services

import (
	"fmt"

	"sales-insight-api/pkg/models"
)

// TreeUndefined is the feature index marking a leaf node.
const TreeUndefined = -2

// TreeLeaf is the child index stored for the missing children of a leaf.
const TreeLeaf = -1

// TreeSource exposes a trained binary decision structure by node index.
type TreeSource interface {
	NodeCount() int
	Feature(node int) int
	Threshold(node int) float64
	Left(node int) int
	Right(node int) int
	Value(node int) []float64
}

// DecisionTree is a trained classifier in the parallel-array layout of a
// scikit-learn tree_ (one entry per node, indexed by node id).
type DecisionTree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Features      []int       `json:"feature"`
	Thresholds    []float64   `json:"threshold"`
	Values        [][]float64 `json:"value"` // ノードごとのクラス別サンプル数
}

func (t *DecisionTree) NodeCount() int             { return len(t.Features) }
func (t *DecisionTree) Feature(node int) int       { return t.Features[node] }
func (t *DecisionTree) Threshold(node int) float64 { return t.Thresholds[node] }
func (t *DecisionTree) Left(node int) int          { return t.ChildrenLeft[node] }
func (t *DecisionTree) Right(node int) int         { return t.ChildrenRight[node] }
func (t *DecisionTree) Value(node int) []float64   { return t.Values[node] }

// Validate checks that the parallel arrays agree in length.
func (t *DecisionTree) Validate() error {
	n := len(t.Features)
	if n == 0 {
		return &MalformedTreeError{Node: 0, Reason: "tree has no nodes"}
	}
	if len(t.ChildrenLeft) != n || len(t.ChildrenRight) != n || len(t.Thresholds) != n || len(t.Values) != n {
		return &MalformedTreeError{Node: 0, Reason: fmt.Sprintf(
			"array lengths differ: feature=%d children_left=%d children_right=%d threshold=%d value=%d",
			n, len(t.ChildrenLeft), len(t.ChildrenRight), len(t.Thresholds), len(t.Values))}
	}
	return nil
}

// Depth returns the number of edges on the longest root-to-leaf path starting at node 0.
// Call it only on a tree that SerializeTree accepted.
func (t *DecisionTree) Depth() int {
	var walk func(node int) int
	walk = func(node int) int {
		if t.Features[node] == TreeUndefined {
			return 0
		}
		return 1 + max(walk(t.ChildrenLeft[node]), walk(t.ChildrenRight[node]))
	}
	return walk(0)
}

// LeafCount returns the number of leaves reachable from node 0.
func (t *DecisionTree) LeafCount() int {
	var walk func(node int) int
	walk = func(node int) int {
		if t.Features[node] == TreeUndefined {
			return 1
		}
		return walk(t.ChildrenLeft[node]) + walk(t.ChildrenRight[node])
	}
	return walk(0)
}

// SerializeTree walks tree from root and builds a renderable node tree.
// Internal nodes are labelled "<feature> <= <threshold>" and leaves "Predict: <class>".
// Out-of-range indices and references to the node itself or an ancestor fail with MalformedTreeError.
func SerializeTree(tree TreeSource, featureNames, classNames []string, root int) (*models.TreeNode, error) {
	s := &treeSerializer{
		tree:         tree,
		featureNames: featureNames,
		classNames:   classNames,
		onPath:       make(map[int]bool),
	}
	return s.recurse(root)
}

type treeSerializer struct {
	tree         TreeSource
	featureNames []string
	classNames   []string
	onPath       map[int]bool
}

func (s *treeSerializer) recurse(node int) (*models.TreeNode, error) {
	if node < 0 || node >= s.tree.NodeCount() {
		return nil, &MalformedTreeError{Node: node, Reason: fmt.Sprintf("node index out of range [0, %d)", s.tree.NodeCount())}
	}
	if s.onPath[node] {
		return nil, &MalformedTreeError{Node: node, Reason: "node references itself or an ancestor"}
	}

	feature := s.tree.Feature(node)
	if feature == TreeUndefined {
		label, err := s.leafLabel(node)
		if err != nil {
			return nil, err
		}
		return &models.TreeNode{Name: label}, nil
	}
	if feature < 0 || feature >= len(s.featureNames) {
		return nil, &MalformedTreeError{Node: node, Reason: fmt.Sprintf("feature index %d out of range [0, %d)", feature, len(s.featureNames))}
	}

	s.onPath[node] = true
	defer delete(s.onPath, node)

	left, err := s.recurse(s.tree.Left(node))
	if err != nil {
		return nil, err
	}
	right, err := s.recurse(s.tree.Right(node))
	if err != nil {
		return nil, err
	}

	return &models.TreeNode{
		Name:     fmt.Sprintf("%s <= %.2f", s.featureNames[feature], s.tree.Threshold(node)),
		Children: []*models.TreeNode{left, right},
	}, nil
}

func (s *treeSerializer) leafLabel(node int) (string, error) {
	idx := argmax(s.tree.Value(node))
	if idx < 0 || idx >= len(s.classNames) {
		return "", &MalformedTreeError{Node: node, Reason: fmt.Sprintf("class index %d out of range [0, %d)", idx, len(s.classNames))}
	}
	return "Predict: " + s.classNames[idx], nil
}

// argmax returns the index of the first maximum, or -1 for an empty slice.
func argmax(values []float64) int {
	best := -1
	for i, v := range values {
		if best == -1 || v > values[best] {
			best = i
		}
	}
	return best
}
