package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/stinet/internal/domain/mocks"
	"github.com/ersonp/stinet/internal/infrastructure/config"
)

func TestNewInitHandler(t *testing.T) {
	schema := &mocks.SchemaManager{}

	handler := NewInitHandler(schema)

	require.NotNil(t, handler)
	assert.Equal(t, schema, handler.schema)
}

func TestInitHandler_Handle_Success(t *testing.T) {
	tmpDir := t.TempDir()
	schema := &mocks.SchemaManager{}

	handler := NewInitHandler(schema)

	result, err := handler.Handle(t.Context(), tmpDir)

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Contains(t, result.ConfigPath, "config.yaml")
	assert.Equal(t, config.SQLitePathForScenario(tmpDir, config.DefaultScenario), result.DatabasePath)
	assert.Equal(t, 1, schema.EnsureSchemaCallCount)

	// Verify config was created
	assert.True(t, config.Exists(tmpDir))
}

func TestInitHandler_Handle_NilSchema(t *testing.T) {
	tmpDir := t.TempDir()

	result, err := NewInitHandler(nil).Handle(t.Context(), tmpDir)

	require.NoError(t, err)
	assert.NotEmpty(t, result.DatabasePath)
}

func TestInitHandler_Handle_AlreadyInitialized(t *testing.T) {
	tmpDir := t.TempDir()

	// Initialize first
	err := config.WriteDefault(tmpDir)
	require.NoError(t, err)

	handler := NewInitHandler(&mocks.SchemaManager{})

	_, err = handler.Handle(t.Context(), tmpDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")
}

func TestInitHandler_Handle_SchemaError(t *testing.T) {
	tmpDir := t.TempDir()
	schema := &mocks.SchemaManager{Err: errors.New("disk full")}

	handler := NewInitHandler(schema)

	_, err := handler.Handle(t.Context(), tmpDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating schema")
}
