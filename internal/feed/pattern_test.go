package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/realmsync/internal/ir"
)

var (
	settlement = Pattern{
		Name:       "settlement_created",
		Mode:       ModeBundle,
		Components: []string{"Identity", "Owner", "Metadata", "Position"},
	}
	balanceChanged = Pattern{
		Name:       "balance_changed",
		Mode:       ModeExact,
		Components: []string{"Balance"},
	}
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(settlement, balanceChanged)
	require.NoError(t, err)
	return c
}

// entered is a notification whose every name became present.
func entered(entity ir.EntityID, names ...string) Change {
	return Change{Entity: entity, Changed: names, Entered: names}
}

// rewritten is a notification whose names were already present.
func rewritten(entity ir.EntityID, names ...string) Change {
	return Change{Entity: entity, Changed: names}
}

func TestClassify_BundleInOneNotification(t *testing.T) {
	c := newClassifier(t)
	got := c.Classify(entered("0x1", "Position", "Metadata", "Owner", "Identity"))
	assert.Equal(t, []string{"settlement_created"}, got)
	assert.Equal(t, 0, c.Pending())
}

func TestClassify_BundleAnyArrivalOrder(t *testing.T) {
	orders := [][][]string{
		{{"Identity"}, {"Owner"}, {"Metadata"}, {"Position"}},
		{{"Position", "Metadata"}, {"Identity", "Owner"}},
		{{"Owner"}, {"Identity"}, {"Metadata", "Position"}},
	}
	for _, order := range orders {
		c := newClassifier(t)
		fired := 0
		for _, names := range order {
			if len(c.Classify(entered("0x1", names...))) > 0 {
				fired++
			}
		}
		assert.Equal(t, 1, fired, "order %v", order)
	}
}

func TestClassify_BundleOncePerEntityPerBundle(t *testing.T) {
	c := newClassifier(t)
	full := []string{"Identity", "Owner", "Metadata", "Position"}

	assert.NotEmpty(t, c.Classify(entered("0x1", full...)))
	// Bundle progress is per entity.
	assert.Empty(t, c.Classify(entered("0x2", "Identity")))
	assert.Equal(t, 1, c.Pending())

	// Rewriting present components never completes the bundle again.
	assert.Empty(t, c.Classify(rewritten("0x1", full...)))
	assert.Empty(t, c.Classify(rewritten("0x1", "Owner", "Metadata", "Position")))
	assert.Equal(t, 1, c.Pending())
}

func TestClassify_BundleRefiresAfterRecreation(t *testing.T) {
	c := newClassifier(t)
	full := []string{"Identity", "Owner", "Metadata", "Position"}
	require.NotEmpty(t, c.Classify(entered("0x1", full...)))

	gone := Change{Entity: "0x1", Changed: full, Exited: full}
	assert.Empty(t, c.Classify(gone))
	assert.NotEmpty(t, c.Classify(entered("0x1", full...)))
}

func TestClassify_ExitRemovesProgress(t *testing.T) {
	c := newClassifier(t)
	assert.Empty(t, c.Classify(entered("0x1", "Identity", "Owner")))
	assert.Empty(t, c.Classify(Change{Entity: "0x1", Changed: []string{"Identity"}, Exited: []string{"Identity"}}))
	assert.Empty(t, c.Classify(entered("0x1", "Metadata", "Position")))
	assert.Equal(t, []string{"settlement_created"}, c.Classify(entered("0x1", "Identity")))
}

func TestClassify_Exact(t *testing.T) {
	c := newClassifier(t)
	assert.Equal(t, []string{"balance_changed"}, c.Classify(rewritten("0x1", "Balance")))
	assert.Equal(t, []string{"balance_changed"}, c.Classify(entered("0x2", "Balance")))
	assert.Empty(t, c.Classify(rewritten("0x1", "Balance", "Trade")))
}

func TestClassify_LoneIdentityDoesNotPass(t *testing.T) {
	c := newClassifier(t)
	assert.Nil(t, c.Classify(entered("0x1", "Identity")))
}

func TestClassify_UnrelatedNamesIgnored(t *testing.T) {
	c := newClassifier(t)
	assert.Nil(t, c.Classify(entered("0x1", "Trade")))
	assert.Equal(t, 0, c.Pending())
}

func TestNewClassifier_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
	}{
		{"no name", Pattern{Mode: ModeExact, Components: []string{"A"}}},
		{"bad mode", Pattern{Name: "x", Mode: "fuzzy", Components: []string{"A"}}},
		{"no components", Pattern{Name: "x", Mode: ModeExact}},
		{"duplicate component", Pattern{Name: "x", Mode: ModeBundle, Components: []string{"A", "A"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClassifier(tt.pattern)
			assert.Error(t, err)
		})
	}

	_, err := NewClassifier(balanceChanged, balanceChanged)
	assert.ErrorContains(t, err, "duplicate pattern")
}
