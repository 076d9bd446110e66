package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Model bundle file names inside the model directory.
const (
	TreeModelFile   = "decision_tree_model.json"
	TypeEncoderFile = "labelencoder_type.json"
	NameEncoderFile = "labelencoder_name.json"
	ItemEncoderFile = "labelencoder_item.json"
)

// DefaultFeatureNames are the training columns of the decision tree, in order.
var DefaultFeatureNames = []string{"Qty", "Sales Price", "Amount", "Name_encoded", "Item_encoded"}

// ModelBundle is the pre-trained classifier plus the label encoders it was trained with.
type ModelBundle struct {
	Tree         *DecisionTree
	FeatureNames []string
	TypeEncoder  *LabelEncoder
	NameEncoder  *LabelEncoder
	ItemEncoder  *LabelEncoder
}

// treeFile is the on-disk form of the decision tree export.
type treeFile struct {
	FeatureNames []string `json:"feature_names,omitempty"`
	DecisionTree
}

// ModelLoader reads the model bundle from a directory and caches it until Invalidate.
type ModelLoader struct {
	mu           sync.RWMutex
	dir          string
	featureNames []string
	cached       *ModelBundle
	logger       *slog.Logger
}

// NewModelLoader creates a loader over dir. featureNames overrides the names stored
// in the tree file when non-empty.
func NewModelLoader(dir string, featureNames []string, logger *slog.Logger) *ModelLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelLoader{dir: dir, featureNames: featureNames, logger: logger}
}

// Load returns the cached bundle or reads the four model files concurrently.
func (l *ModelLoader) Load(ctx context.Context) (*ModelBundle, error) {
	l.mu.RLock()
	if b := l.cached; b != nil {
		l.mu.RUnlock()
		return b, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cached != nil {
		return l.cached, nil
	}

	var tree treeFile
	var typeEnc, nameEnc, itemEnc *LabelEncoder
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return readJSONFile(ctx, filepath.Join(l.dir, TreeModelFile), &tree) })
	g.Go(func() (err error) { typeEnc, err = l.loadEncoder(ctx, TypeEncoderFile, "Type"); return })
	g.Go(func() (err error) { nameEnc, err = l.loadEncoder(ctx, NameEncoderFile, "Name"); return })
	g.Go(func() (err error) { itemEnc, err = l.loadEncoder(ctx, ItemEncoderFile, "Item"); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dt := tree.DecisionTree
	if err := dt.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tree model %s: %w", TreeModelFile, err)
	}

	features := l.featureNames
	if len(features) == 0 {
		features = tree.FeatureNames
	}
	if len(features) == 0 {
		features = DefaultFeatureNames
	}

	bundle := &ModelBundle{
		Tree:         &dt,
		FeatureNames: append([]string(nil), features...),
		TypeEncoder:  typeEnc,
		NameEncoder:  nameEnc,
		ItemEncoder:  itemEnc,
	}
	l.cached = bundle
	l.logger.Info("🌳 model bundle loaded",
		"dir", l.dir,
		"nodes", dt.NodeCount(),
		"classes", len(typeEnc.Classes))
	return bundle, nil
}

// Invalidate drops the cached bundle so the next Load rereads the files.
func (l *ModelLoader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
}

func (l *ModelLoader) loadEncoder(ctx context.Context, file, column string) (*LabelEncoder, error) {
	var raw struct {
		Classes []string `json:"classes"`
	}
	if err := readJSONFile(ctx, filepath.Join(l.dir, file), &raw); err != nil {
		return nil, err
	}
	if len(raw.Classes) == 0 {
		return nil, fmt.Errorf("label encoder %s has no classes", file)
	}
	return NewLabelEncoder(column, raw.Classes), nil
}

func readJSONFile(ctx context.Context, path string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
