package tabs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func existing(ids ...string) RegionLookup {
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool { return set[id] }
}

func TestInitBuildsGroups(t *testing.T) {
	n := NewNavigator(DefaultGroups(), map[string]string{"pick-content": "Request Pick Up"}, nil, nil)
	assert.False(t, n.Initialized())

	require.NoError(t, n.Init(context.Background()))
	assert.True(t, n.Initialized())

	groups := n.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "tab-content-container", groups[0].ID)
	require.Len(t, groups[0].Panels, 5)
	assert.Equal(t, Panel{ID: "pick-content", Label: "Request Pick Up", Active: true}, groups[0].Panels[0])
	assert.Equal(t, "Feed", groups[0].Panels[1].Label)
	assert.Equal(t, "Validation Cid", groups[1].Panels[0].Label)
	assert.True(t, groups[1].Panels[0].Active)
}

func TestInitSkipsMissingRegions(t *testing.T) {
	n := NewNavigator(DefaultGroups(), nil, existing("feed-content", "sani-content"), nil)
	require.NoError(t, n.Init(context.Background()))

	groups := n.Groups()
	require.Len(t, groups, 1, "validation group has no regions")
	require.Len(t, groups[0].Panels, 2)
	assert.Equal(t, "feed-content", groups[0].Panels[0].ID)
	assert.True(t, groups[0].Panels[0].Active)
	assert.True(t, n.Grouped("sani-content"))
	assert.False(t, n.Grouped("pick-content"))
}

func TestInitRejectsDuplicatePanels(t *testing.T) {
	n := NewNavigator([]GroupConfig{
		{Container: "a", Panels: []string{"x"}},
		{Container: "b", Panels: []string{"x"}},
	}, nil, nil, nil)
	assert.Error(t, n.Init(context.Background()))

	n = NewNavigator([]GroupConfig{{Panels: []string{"x"}}}, nil, nil, nil)
	assert.Error(t, n.Init(context.Background()))
}

func TestActivate(t *testing.T) {
	n := NewNavigator(DefaultGroups(), nil, nil, nil)

	_, _, ok := n.Activate("#feed-content")
	assert.False(t, ok, "no groups before Init")

	require.NoError(t, n.Init(context.Background()))

	group, idx, ok := n.Activate("#sani-content")
	require.True(t, ok)
	assert.Equal(t, "tab-content-container", group)
	assert.Equal(t, 3, idx)

	groups := n.Groups()
	for i, p := range groups[0].Panels {
		assert.Equal(t, i == 3, p.Active, p.ID)
	}
	assert.True(t, groups[1].Panels[0].Active, "other groups keep their state")

	group, idx, ok = n.Activate("validation-cred-content")
	require.True(t, ok)
	assert.Equal(t, "validation-subtabs", group)
	assert.Equal(t, 1, idx)

	_, _, ok = n.Activate("#nope")
	assert.False(t, ok)
	_, _, ok = n.Activate("#")
	assert.False(t, ok)
}

func TestGroupsReturnsCopy(t *testing.T) {
	n := NewNavigator(DefaultGroups(), nil, nil, nil)
	require.NoError(t, n.Init(context.Background()))

	groups := n.Groups()
	groups[0].Panels[0].Label = "changed"
	assert.NotEqual(t, "changed", n.Groups()[0].Panels[0].Label)
}
