package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_ValidateAcceptsAllowedShapes(t *testing.T) {
	m := Metadata{
		"title":     "quarterly report",
		"pages":     42,
		"ratio":     0.5,
		"approved":  true,
		"reviewers": []any{"alice", "bob"},
		"origin": map[string]any{
			"department": "finance",
			"year":       2026,
		},
		"note": nil,
	}
	assert.NoError(t, m.Validate())
}

func TestMetadata_ValidateRejectsInvalidShapes(t *testing.T) {
	cases := []struct {
		name string
		m    Metadata
	}{
		{"empty key", Metadata{"": "x"}},
		{"nested map in list", Metadata{"l": []any{map[string]any{"a": 1}}}},
		{"two-level nesting", Metadata{"m": map[string]any{"inner": map[string]any{"a": 1}}}},
		{"list in nested map", Metadata{"m": map[string]any{"inner": []any{1}}}},
		{"channel value", Metadata{"ch": make(chan int)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.m.Validate())
		})
	}
}

func TestMetadata_ValidateNilIsValid(t *testing.T) {
	var m Metadata
	assert.NoError(t, m.Validate())
}

func TestMetadata_CloneIsIndependent(t *testing.T) {
	m := Metadata{
		"tags":   []any{"a"},
		"origin": map[string]any{"k": "v"},
		"title":  "x",
	}

	clone := m.Clone()
	require.NotNil(t, clone)

	clone["title"] = "changed"
	clone["tags"].([]any)[0] = "changed"
	clone["origin"].(map[string]any)["k"] = "changed"

	assert.Equal(t, "x", m["title"])
	assert.Equal(t, "a", m["tags"].([]any)[0])
	assert.Equal(t, "v", m["origin"].(map[string]any)["k"])
}
