package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTableName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"Valid standard", "research_sources", true},
		{"Valid with numbers", "sources2025", true},
		{"Valid short", "a", true},
		{"Valid leading underscore", "_sources", true},
		{"Valid max length", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_", true}, // 63 chars
		{"Invalid start with number", "1sources", false},
		{"Invalid start with capital", "Sources", false},
		{"Invalid special chars", "research-sources", false},
		{"Invalid space", "research sources", false},
		{"Invalid SQL injection", "users; DROP TABLE research_sources", false},
		{"Invalid empty", "", false},
		{"Invalid too long", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789__", false}, // 64 chars
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isValidTableName(tt.input))
		})
	}
}

func TestNewPGVectorStore_RejectsBadName(t *testing.T) {
	_, err := NewPGVectorStore(nil, "bad-name")
	assert.ErrorContains(t, err, "invalid table name")

	vs, err := NewPGVectorStore(nil, "research_sources")
	require.NoError(t, err)
	assert.Equal(t, `"research_sources"`, vs.table())
}

func TestDocument_Source(t *testing.T) {
	assert.Equal(t, "https://arxiv.org/pdf/1", Document{Metadata: map[string]any{"source": "https://arxiv.org/pdf/1"}}.Source())
	assert.Equal(t, "unknown", Document{}.Source())
	assert.Equal(t, "unknown", Document{Metadata: map[string]any{"source": 3}}.Source())
}

func TestBuildMetadataQuery(t *testing.T) {
	tests := []struct {
		name          string
		filter        map[string]any
		wantQuery     string
		wantArgsCount int
		wantErr       bool
	}{
		{
			name:      "Empty filter",
			filter:    map[string]any{},
			wantQuery: "TRUE",
		},
		{
			name:          "Single key-value",
			filter:        map[string]any{"title": "Grid Storage"},
			wantQuery:     "metadata @> $1",
			wantArgsCount: 1,
		},
		{
			name: "$and operator",
			filter: map[string]any{
				"$and": []any{
					map[string]any{"a": 1},
					map[string]any{"b": 2},
				},
			},
			wantQuery:     "((metadata @> $1) AND (metadata @> $2))",
			wantArgsCount: 2,
		},
		{
			name: "$or operator",
			filter: map[string]any{
				"$or": []any{
					map[string]any{"a": 1},
					map[string]any{"b": 2},
				},
			},
			wantQuery:     "((metadata @> $1) OR (metadata @> $2))",
			wantArgsCount: 2,
		},
		{
			name: "$not operator",
			filter: map[string]any{
				"$not": map[string]any{"a": 1},
			},
			wantQuery:     "NOT (metadata @> $1)",
			wantArgsCount: 1,
		},
		{
			name: "Nested operators",
			filter: map[string]any{
				"$or": []any{
					map[string]any{"a": 1},
					map[string]any{
						"$and": []any{
							map[string]any{"b": 2},
							map[string]any{"c": 3},
						},
					},
				},
			},
			wantQuery:     "((metadata @> $1) OR (((metadata @> $2) AND (metadata @> $3))))",
			wantArgsCount: 3,
		},
		{
			name:          "Implicit AND (multi-key map)",
			filter:        map[string]any{"a": 1, "b": 2},
			wantQuery:     "metadata @> $1 AND metadata @> $2",
			wantArgsCount: 2,
		},
		{
			name:    "Error: Value for $or is not a list",
			filter:  map[string]any{"$or": "invalid"},
			wantErr: true,
		},
		{
			name:    "Error: Item in $and list is not an object",
			filter:  map[string]any{"$and": []any{"invalid"}},
			wantErr: true,
		},
		{
			name:    "Error: Value for $not is not an object",
			filter:  map[string]any{"$not": []any{"invalid"}},
			wantErr: true,
		},
		{
			name:      "Empty list in operator is ignored",
			filter:    map[string]any{"$or": []any{}},
			wantQuery: "TRUE",
		},
		{
			name:      "Operator with empty objects",
			filter:    map[string]any{"$and": []any{map[string]any{}}},
			wantQuery: "((TRUE))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args []any
			gotQuery, err := buildMetadataQuery(tt.filter, &args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, gotQuery)
			assert.Len(t, args, tt.wantArgsCount)
		})
	}
}

func TestBuildMetadataQuery_ArgumentEncoding(t *testing.T) {
	var args []any
	_, err := buildMetadataQuery(map[string]any{"title": "Grid Storage"}, &args)
	require.NoError(t, err)
	require.Len(t, args, 1)
	assert.JSONEq(t, `{"title":"Grid Storage"}`, string(args[0].([]byte)))
}
