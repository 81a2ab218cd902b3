package analysis

import (
	"context"
	"testing"

	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver() *Resolver {
	r := NewResolver()
	r.Load(
		[]models.Tool{
			{ID: "t1", Name: "Hammer"},
			{ID: "t2", Name: "Mallet"},
			{ID: "t3", Name: "Saw"},
		},
		[]models.ToolAlias{
			// t2 was merged into t1.
			{AliasToolID: "t2", AliasName: "mallet", PrimaryToolID: "t1"},
		},
	)
	return r
}

func TestResolveDirectName(t *testing.T) {
	r := testResolver()

	id, ok, err := r.Resolve("Hammer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", id)
}

func TestResolveAliasFollowsPrimary(t *testing.T) {
	r := testResolver()

	id, ok, err := r.Resolve("mallet")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", id, "alias must resolve to the merge target")
}

func TestResolveUnknownName(t *testing.T) {
	r := testResolver()

	_, ok, err := r.Resolve("wrench")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanonicalChain(t *testing.T) {
	r := NewResolver()
	r.Load(nil, []models.ToolAlias{
		{AliasToolID: "a", PrimaryToolID: "b"},
		{AliasToolID: "b", PrimaryToolID: "c"},
	})

	id, err := r.Canonical("a")
	require.NoError(t, err)
	assert.Equal(t, "c", id)
}

func TestCanonicalCycle(t *testing.T) {
	r := NewResolver()
	r.Load(nil, []models.ToolAlias{
		{AliasToolID: "a", PrimaryToolID: "b"},
		{AliasToolID: "b", PrimaryToolID: "a"},
	})

	_, err := r.Canonical("a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAliasCycle)
}

func TestAssociationsGateAndDedup(t *testing.T) {
	r := testResolver()
	detector := NewKeywordDetector(r.Names()...)

	// "hammer" and its alias "mallet" both resolve to t1; "sawdust" only
	// yields a below-gate substring match for "saw".
	ids, err := Associations(context.Background(), detector, r, "hammer and mallet in the sawdust")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ids)
}

func TestAssociationsEmptyText(t *testing.T) {
	r := testResolver()
	detector := NewKeywordDetector(r.Names()...)

	ids, err := Associations(context.Background(), detector, r, "")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
