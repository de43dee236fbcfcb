package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMigrations(t *testing.T) {
	tests := []struct {
		name       string
		migrations []Migration
		wantErr    string
	}{
		{
			name: "valid ordered set",
			migrations: []Migration{
				{Version: "001_create_lectures", SQL: "CREATE TABLE lectures ()"},
				{Version: "002_add_index", SQL: "CREATE INDEX idx ON lectures (id)"},
			},
		},
		{
			name:       "empty set is valid",
			migrations: nil,
		},
		{
			name: "empty version",
			migrations: []Migration{
				{Version: "", SQL: "SELECT 1"},
			},
			wantErr: "empty version",
		},
		{
			name: "empty SQL",
			migrations: []Migration{
				{Version: "001_noop", SQL: "   "},
			},
			wantErr: "has no SQL",
		},
		{
			name: "duplicate version",
			migrations: []Migration{
				{Version: "001_a", SQL: "SELECT 1"},
				{Version: "001_a", SQL: "SELECT 2"},
			},
			wantErr: "duplicate",
		},
		{
			name: "out of order",
			migrations: []Migration{
				{Version: "002_b", SQL: "SELECT 1"},
				{Version: "001_a", SQL: "SELECT 2"},
			},
			wantErr: "out of order",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateMigrations(tt.migrations)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestApply_NilPool(t *testing.T) {
	_, err := Apply(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool is nil")
}

func TestPending_NilPool(t *testing.T) {
	_, err := Pending(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool is nil")
}

func TestAppliedAt_NilPool(t *testing.T) {
	_, err := AppliedAt(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool is nil")
}
