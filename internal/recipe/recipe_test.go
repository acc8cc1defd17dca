package recipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeSets(t *testing.T) {
	assert.True(t, IsUCUMUnit("cup_us"))
	assert.True(t, IsUCUMUnit("tsp_imp"))
	assert.False(t, IsUCUMUnit("cup"))
	assert.False(t, IsUCUMUnit(""))

	assert.True(t, IsMetricUnit("g"))
	assert.True(t, IsMetricUnit("ml"))
	assert.False(t, IsMetricUnit("kg"))

	assert.True(t, IsAllergenCode("MILK"))
	assert.True(t, IsAllergenCode("SULPHITE"))
	assert.False(t, IsAllergenCode("milk"))
	assert.False(t, IsAllergenCode(""))

	assert.True(t, IsMealType("dinner"))
	assert.False(t, IsMealType("supper"))

	assert.Len(t, AllergenCodes, 17)
	assert.Len(t, UCUMUnits, 9)
}

func TestRecipeClone(t *testing.T) {
	orig := Recipe{
		Title:     "Roast Chicken",
		PreReqs:   []string{"brine overnight"},
		TotalTime: 90,
		Ingredients: []Ingredient{
			{Name: "chicken", UCUMUnit: "cup_us", UCUMAmount: 1, MetricUnit: "g", MetricAmount: 1200},
		},
		Steps: []string{"Roast.", "Rest."},
	}

	clone := orig.Clone()
	clone.PreReqs[0] = "changed"
	clone.Steps[0] = "changed"
	clone.Ingredients[0].Name = "changed"

	assert.Equal(t, "brine overnight", orig.PreReqs[0])
	assert.Equal(t, "Roast.", orig.Steps[0])
	assert.Equal(t, "chicken", orig.Ingredients[0].Name)
}

func TestStoredClone(t *testing.T) {
	orig := Stored{
		Recipe: Recipe{
			Title: "Tomato Soup",
			Steps: []string{"Simmer."},
		},
		UUID:             "0000000000000-abc",
		CreatedAtEpochMs: 1700000000000,
		UpdatedAtEpochMs: 1700000000000,
	}

	clone := orig.Clone()
	clone.Steps[0] = "changed"
	clone.UUID = "other"

	assert.Equal(t, "Simmer.", orig.Steps[0])
	assert.Equal(t, "0000000000000-abc", orig.UUID)
	assert.Equal(t, orig.CreatedAtEpochMs, clone.CreatedAtEpochMs)
}
