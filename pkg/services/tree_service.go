package services

import (
	"fmt"
	"log/slog"

	"sales-insight-api/pkg/models"
)

// TreeService validates the dataset against the model's encoders and renders the tree.
type TreeService struct {
	columns models.ColumnMap
	logger  *slog.Logger
}

// NewTreeService 新しい決定木サービスを作成
func NewTreeService(columns models.ColumnMap, logger *slog.Logger) *TreeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TreeService{columns: columns, logger: logger}
}

// Describe cleans the numeric features, encodes the categorical columns with the
// bundle's label encoders and serializes the tree with the category classes as labels.
// A label the encoders were not fitted on fails with EncodingError.
func (s *TreeService) Describe(table models.RawTable, bundle *ModelBundle) (*models.TreeDescription, error) {
	if bundle == nil || bundle.Tree == nil {
		return nil, fmt.Errorf("model bundle is not loaded")
	}

	cols := s.columns
	frame, err := Clean(table, []ColumnRule{
		{Column: cols.Quantity, Transform: ParseNumber},
		{Column: cols.UnitPrice, Transform: ParseNumber},
		{Column: cols.Amount, Transform: ParseNumber},
	}, []string{cols.Quantity, cols.UnitPrice, cols.Amount, cols.ItemCategory, cols.EntityName, cols.ItemName})
	if err != nil {
		return nil, err
	}

	rows := frame.SalesRows(cols)
	categories := make([]string, len(rows))
	names := make([]string, len(rows))
	items := make([]string, len(rows))
	for i, r := range rows {
		categories[i] = r.ItemCategory
		names[i] = r.EntityName
		items[i] = r.ItemName
	}
	for _, enc := range []struct {
		encoder *LabelEncoder
		values  []string
	}{
		{bundle.TypeEncoder, categories},
		{bundle.NameEncoder, names},
		{bundle.ItemEncoder, items},
	} {
		if enc.encoder == nil {
			return nil, fmt.Errorf("model bundle is missing a label encoder")
		}
		if _, err := enc.encoder.Transform(enc.values); err != nil {
			return nil, err
		}
	}

	root, err := SerializeTree(bundle.Tree, bundle.FeatureNames, bundle.TypeEncoder.Classes, 0)
	if err != nil {
		return nil, err
	}

	desc := &models.TreeDescription{
		Root:          root,
		RowsValidated: len(rows),
		Depth:         root.Depth(),
		Leaves:        root.LeafCount(),
	}
	s.logger.Info("🌳 decision tree serialized",
		"rows", desc.RowsValidated,
		"dropped", frame.Dropped,
		"depth", desc.Depth,
		"leaves", desc.Leaves)
	return desc, nil
}
