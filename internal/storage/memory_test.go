package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealplanner/pantry/internal/daylog"
	"github.com/mealplanner/pantry/internal/recipe"
	"github.com/mealplanner/pantry/internal/search"
)

// rawRecipeDoc returns an untyped recipe document that passes validation.
func rawRecipeDoc(title string) map[string]any {
	return map[string]any{
		"title":       title,
		"image_url":   "https://example.com/dish.jpg",
		"description": "Test dish.",
		"notes":       "",
		"pre_reqs":    []any{},
		"total_time":  30,
		"ingredients": []any{map[string]any{
			"name":          "salt",
			"ucum-unit":     "tsp_us",
			"ucum-amount":   0.5,
			"metric-unit":   "g",
			"metric-amount": 3,
			"notes":         "",
		}},
		"steps": []any{"Mix.", "Serve."},
	}
}

func typedRecipe(title string) recipe.Recipe {
	return recipe.Recipe{
		Title:       title,
		ImageURL:    "https://example.com/dish.jpg",
		Description: "Test dish.",
		TotalTime:   30,
		Ingredients: []recipe.Ingredient{{
			Name: "salt", UCUMUnit: "tsp_us", UCUMAmount: 0.5,
			MetricUnit: "g", MetricAmount: 3,
		}},
		Steps: []string{"Mix.", "Serve."},
	}
}

func TestMemory_PutRecipeAssignsIdentity(t *testing.T) {
	now := int64(1700000000000)
	m := NewMemory(WithClock(func() int64 { return now }))
	ctx := context.Background()

	stored, err := m.PutRecipe(ctx, rawRecipeDoc("Roast Chicken"))

	require.NoError(t, err)
	assert.NotEmpty(t, stored.UUID)
	assert.Equal(t, now, stored.CreatedAtEpochMs)
	assert.Equal(t, now, stored.UpdatedAtEpochMs)
	assert.Equal(t, "Roast Chicken", stored.Title)
}

func TestMemory_PutRecipeRejectsInvalidInput(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	doc := rawRecipeDoc("Bad Recipe")
	doc["total_time"] = 0

	_, err := m.PutRecipe(ctx, doc)

	var vErr *ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.False(t, vErr.Result.IsValid)

	// The rejected write must leave the collection untouched.
	recipes, err := m.ListRecipes(ctx)
	require.NoError(t, err)
	assert.Empty(t, recipes)
}

func TestMemory_PutRecipeRejectsDuplicateTitle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.PutRecipe(ctx, typedRecipe("Roast Chicken"))
	require.NoError(t, err)

	// Title comparison is case-insensitive and trims whitespace.
	_, err = m.PutRecipe(ctx, typedRecipe("  roast chicken "))

	var dupErr *DuplicateTitleError
	require.ErrorAs(t, err, &dupErr)

	recipes, err := m.ListRecipes(ctx)
	require.NoError(t, err)
	assert.Len(t, recipes, 1)
}

func TestMemory_PutRecipeRewriteKeepsIdentity(t *testing.T) {
	now := int64(1700000000000)
	m := NewMemory(WithClock(func() int64 { return now }))
	ctx := context.Background()

	stored, err := m.PutRecipe(ctx, typedRecipe("Roast Chicken"))
	require.NoError(t, err)

	now += 5000
	stored.Description = "Updated."
	updated, err := m.PutRecipe(ctx, stored)

	require.NoError(t, err)
	assert.Equal(t, stored.UUID, updated.UUID)
	assert.Equal(t, int64(1700000000000), updated.CreatedAtEpochMs)
	assert.Equal(t, int64(1700000005000), updated.UpdatedAtEpochMs)

	got, err := m.GetRecipe(ctx, stored.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Updated.", got.Description)
}

func TestMemory_PutRecipeRewriteMayKeepOwnTitle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	stored, err := m.PutRecipe(ctx, typedRecipe("Roast Chicken"))
	require.NoError(t, err)

	// Rewriting the same record with the same title is not a collision.
	stored.Notes = "extra"
	_, err = m.PutRecipe(ctx, stored)
	require.NoError(t, err)
}

func TestMemory_GetRecipeNotFound(t *testing.T) {
	m := NewMemory()

	_, err := m.GetRecipe(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListRecipesOrdersByCreation(t *testing.T) {
	now := int64(1700000000000)
	m := NewMemory(WithClock(func() int64 { return now }))
	ctx := context.Background()

	for _, title := range []string{"First", "Second", "Third"} {
		_, err := m.PutRecipe(ctx, typedRecipe(title))
		require.NoError(t, err)
		now += 1000
	}

	recipes, err := m.ListRecipes(ctx)

	require.NoError(t, err)
	require.Len(t, recipes, 3)
	assert.Equal(t, "First", recipes[0].Title)
	assert.Equal(t, "Second", recipes[1].Title)
	assert.Equal(t, "Third", recipes[2].Title)
}

func TestMemory_SearchIgnoresRefinement(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.PutRecipe(ctx, typedRecipe("Roast Chicken"))
	require.NoError(t, err)
	_, err = m.PutRecipe(ctx, typedRecipe("Tomato Soup"))
	require.NoError(t, err)

	results, err := m.SearchRecipes(ctx, search.Options{Query: "nothing matches this"})

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemory_DayEventLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	events := []daylog.Event{
		{ID: "e1", ISODate: "2026-03-14", Op: daylog.OpAdd, RecipeUUID: "r1", OccurredAtEpochMs: 100},
		{ID: "e2", ISODate: "2026-03-14", Op: daylog.OpAdd, RecipeUUID: "r2", OccurredAtEpochMs: 200},
	}

	log, err := m.AppendDayEvents(ctx, "2026-03-14", events)
	require.NoError(t, err)
	assert.Len(t, log.Events, 2)
	assert.NotEmpty(t, log.LastIndexedChangeToken)

	// Remove r1, then confirm the materialized view has only r2.
	_, err = m.AppendDayEvents(ctx, "2026-03-14", []daylog.Event{
		{ID: "e3", ISODate: "2026-03-14", Op: daylog.OpDel, RecipeUUID: "r1", OccurredAtEpochMs: 300},
	})
	require.NoError(t, err)

	meals, err := Meals(ctx, m, "2026-03-14")
	require.NoError(t, err)
	require.Len(t, meals, 1)
	assert.Equal(t, "r2", meals[0].RecipeUUID)
}

func TestMemory_ReadDayLogNotFound(t *testing.T) {
	m := NewMemory()

	_, err := m.ReadDayLog(context.Background(), "2026-03-14")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_MealsForUnknownDateIsEmpty(t *testing.T) {
	m := NewMemory()

	meals, err := Meals(context.Background(), m, "2026-03-14")

	require.NoError(t, err)
	assert.Empty(t, meals)
}

func TestMemory_CompactDayLog(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.AppendDayEvents(ctx, "2026-03-14", []daylog.Event{
		{ID: "e1", Op: daylog.OpAdd, RecipeUUID: "r1", OccurredAtEpochMs: 100},
		{ID: "e2", Op: daylog.OpDel, RecipeUUID: "r1", OccurredAtEpochMs: 200},
		{ID: "e3", Op: daylog.OpAdd, RecipeUUID: "r2", OccurredAtEpochMs: 300},
	})
	require.NoError(t, err)

	before, err := Meals(ctx, m, "2026-03-14")
	require.NoError(t, err)

	require.NoError(t, m.CompactDayLog(ctx, "2026-03-14"))

	log, err := m.ReadDayLog(ctx, "2026-03-14")
	require.NoError(t, err)
	assert.Len(t, log.Events, 1)

	after, err := Meals(ctx, m, "2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMemory_CompactUnknownDate(t *testing.T) {
	m := NewMemory()

	err := m.CompactDayLog(context.Background(), "2026-03-14")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_StreamChanges(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	stored, err := m.PutRecipe(ctx, typedRecipe("Roast Chicken"))
	require.NoError(t, err)
	_, err = m.AppendDayEvents(ctx, "2026-03-14", []daylog.Event{
		{ID: "e1", Op: daylog.OpAdd, RecipeUUID: stored.UUID, OccurredAtEpochMs: 100},
	})
	require.NoError(t, err)

	ch, err := m.StreamChanges(ctx, "")
	require.NoError(t, err)

	var changes []Change
	for c := range ch {
		changes = append(changes, c)
	}

	require.Len(t, changes, 2)
	assert.Equal(t, ChangeRecipe, changes[0].Type)
	assert.Equal(t, stored.UUID, changes[0].Key)
	assert.Equal(t, ChangeDay, changes[1].Type)
	assert.Equal(t, "2026-03-14", changes[1].Key)

	// Resuming after the first token yields only the later change.
	ch, err = m.StreamChanges(ctx, changes[0].ChangeToken)
	require.NoError(t, err)
	var resumed []Change
	for c := range ch {
		resumed = append(resumed, c)
	}
	require.Len(t, resumed, 1)
	assert.Equal(t, ChangeDay, resumed[0].Type)
}
