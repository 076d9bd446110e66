package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sales-insight-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeModelDir writes a stump tree and the three encoders into a temp directory.
func writeModelDir(t *testing.T, names, items []string) string {
	t.Helper()
	dir := t.TempDir()

	write := func(file string, v any) {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), data, 0o644))
	}
	write(TreeModelFile, stumpTree())
	write(TypeEncoderFile, map[string][]string{"classes": testClasses})
	write(NameEncoderFile, map[string][]string{"classes": names})
	write(ItemEncoderFile, map[string][]string{"classes": items})
	return dir
}

func TestModelLoaderLoadsAndCaches(t *testing.T) {
	dir := writeModelDir(t, []string{"Ann", "Bob"}, []string{"Widget"})
	loader := NewModelLoader(dir, nil, nil)

	bundle, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, bundle.Tree.NodeCount())
	assert.Equal(t, DefaultFeatureNames, bundle.FeatureNames)
	assert.Equal(t, testClasses, bundle.TypeEncoder.Classes)
	assert.Equal(t, "Name", bundle.NameEncoder.Column)

	again, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, bundle, again)

	loader.Invalidate()
	reloaded, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, bundle, reloaded)
}

func TestModelLoaderFeatureNamesOverride(t *testing.T) {
	dir := writeModelDir(t, []string{"Ann"}, []string{"Widget"})
	features := []string{"a", "b", "c", "d", "e"}

	bundle, err := NewModelLoader(dir, features, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, features, bundle.FeatureNames)
}

func TestModelLoaderErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		dir := writeModelDir(t, []string{"Ann"}, []string{"Widget"})
		require.NoError(t, os.Remove(filepath.Join(dir, ItemEncoderFile)))

		_, err := NewModelLoader(dir, nil, nil).Load(context.Background())
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("empty encoder", func(t *testing.T) {
		dir := writeModelDir(t, []string{}, []string{"Widget"})

		_, err := NewModelLoader(dir, nil, nil).Load(context.Background())
		assert.Error(t, err)
	})

	t.Run("inconsistent tree", func(t *testing.T) {
		dir := writeModelDir(t, []string{"Ann"}, []string{"Widget"})
		require.NoError(t, os.WriteFile(filepath.Join(dir, TreeModelFile),
			[]byte(`{"children_left":[-1],"children_right":[-1,-1],"feature":[-2],"threshold":[-2],"value":[[1]]}`), 0o644))

		_, err := NewModelLoader(dir, nil, nil).Load(context.Background())
		var malformed *MalformedTreeError
		assert.True(t, errors.As(err, &malformed))
	})

	t.Run("cancelled context", func(t *testing.T) {
		dir := writeModelDir(t, []string{"Ann"}, []string{"Widget"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewModelLoader(dir, nil, nil).Load(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTreeServiceDescribe(t *testing.T) {
	dir := writeModelDir(t, []string{"Ann", "Bob"}, []string{"Widget", "Gadget"})
	bundle, err := NewModelLoader(dir, nil, nil).Load(context.Background())
	require.NoError(t, err)

	table := salesTable(
		[]string{"Ann", "Retail", "Widget", "1", "10", "10", "2024-01-01"},
		[]string{"Bob", "Wholesale", "Gadget", "20", "5", "1,00", "2024-01-02"},
		[]string{"Bob", "Wholesale", "Gadget", "x", "5", "100", "2024-01-02"},
	)

	desc, err := NewTreeService(models.DefaultColumnMap(), nil).Describe(table, bundle)
	require.NoError(t, err)

	assert.Equal(t, 2, desc.RowsValidated)
	assert.Equal(t, 1, desc.Depth)
	assert.Equal(t, 2, desc.Leaves)
	assert.Equal(t, "Amount <= 50.00", desc.Root.Name)
	assert.Equal(t, "Predict: Retail", desc.Root.Children[0].Name)
}

func TestTreeServiceDescribeUnseenLabel(t *testing.T) {
	dir := writeModelDir(t, []string{"Ann"}, []string{"Widget"})
	bundle, err := NewModelLoader(dir, nil, nil).Load(context.Background())
	require.NoError(t, err)

	table := salesTable([]string{"Stranger", "Retail", "Widget", "1", "10", "10", ""})

	_, err = NewTreeService(models.DefaultColumnMap(), nil).Describe(table, bundle)

	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, "Stranger", encErr.Value)
}

func TestTreeServiceDescribeWithoutBundle(t *testing.T) {
	_, err := NewTreeService(models.DefaultColumnMap(), nil).Describe(salesTable(), nil)
	assert.Error(t, err)
}
