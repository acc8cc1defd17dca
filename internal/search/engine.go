// Package search ranks and filters an in-memory recipe collection.
package search

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mealplanner/pantry/internal/recipe"
)

// Sort orders accepted by Options.SortBy.
const (
	SortTitle     = "title"
	SortTotalTime = "total_time"
	SortRelevance = "relevance"
)

// Matched field names recorded on results for caller display.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldIngredients = "ingredients"
)

// Weights are the additive score bonuses awarded per matched field. The
// values have no documented rationale beyond observed usefulness, so they are
// configurable rather than hard invariants.
type Weights struct {
	Title       float64 `json:"title" yaml:"title"`
	Description float64 `json:"description" yaml:"description"`
	Ingredient  float64 `json:"ingredient" yaml:"ingredient"`
}

// DefaultWeights returns the standard relevance weights.
func DefaultWeights() Weights {
	return Weights{Title: 2.0, Description: 1.0, Ingredient: 0.5}
}

// baseScore is the score every candidate starts with before bonuses.
const baseScore = 1.0

// Options is the search query surface. Every field is optional; the zero
// Options returns the unranked, unfiltered, unsorted full collection.
type Options struct {
	// Query retains only candidates whose title, description, or an
	// ingredient name contains it, case-insensitively.
	Query string `json:"query,omitempty"`
	// MaxTime is a hard inclusive filter on total_time, in minutes.
	// nil means no time filter.
	MaxTime *int `json:"maxTime,omitempty"`
	// Ingredients requires at least one tag to substring-match at least one
	// ingredient name (OR across tags, OR across ingredients).
	Ingredients []string `json:"ingredients,omitempty"`
	// ExcludeAllergens removes candidates carrying any of these allergen
	// codes on any ingredient. Matching is case-insensitive.
	ExcludeAllergens []string `json:"excludeAllergens,omitempty"`
	// Limit truncates the sorted result when positive.
	Limit int `json:"limit,omitempty"`
	// SortBy is one of the Sort constants; empty defaults to relevance.
	SortBy string `json:"sortBy,omitempty"`
}

// Result is a ranked candidate. MatchedFields names the fields the query
// matched, in title/description/ingredients order.
type Result struct {
	Recipe        recipe.Stored `json:"recipe"`
	Score         float64       `json:"score"`
	MatchedFields []string      `json:"matchedFields"`
}

// Engine filters and ranks recipe collections. Engines are immutable after
// construction and safe for concurrent use.
type Engine struct {
	weights  Weights
	collator *collate.Collator
}

// New returns an Engine with the given weights. Title sorting uses
// locale-aware collation so results order the way a recipe list renders.
func New(weights Weights) *Engine {
	return &Engine{
		weights:  weights,
		collator: collate.New(language.English, collate.IgnoreCase),
	}
}

// Search filters collection per opts and returns ranked results. Filters
// compose by intersection; within the Ingredients filter tags compose by
// union. Ties under any sort order are left to the stable sort.
func (e *Engine) Search(collection []recipe.Stored, opts Options) []Result {
	results := make([]Result, 0, len(collection))
	for _, r := range collection {
		results = append(results, Result{Recipe: r, Score: baseScore, MatchedFields: []string{}})
	}

	if q := strings.TrimSpace(opts.Query); q != "" {
		query := strings.ToLower(q)
		results = filter(results, func(res *Result) bool {
			titleMatch := strings.Contains(strings.ToLower(res.Recipe.Title), query)
			descriptionMatch := strings.Contains(strings.ToLower(res.Recipe.Description), query)
			ingredientMatch := false
			for _, ing := range res.Recipe.Ingredients {
				if strings.Contains(strings.ToLower(ing.Name), query) {
					ingredientMatch = true
					break
				}
			}

			if titleMatch {
				res.Score += e.weights.Title
				res.MatchedFields = append(res.MatchedFields, FieldTitle)
			}
			if descriptionMatch {
				res.Score += e.weights.Description
				res.MatchedFields = append(res.MatchedFields, FieldDescription)
			}
			if ingredientMatch {
				res.Score += e.weights.Ingredient
				res.MatchedFields = append(res.MatchedFields, FieldIngredients)
			}

			return titleMatch || descriptionMatch || ingredientMatch
		})
	}

	if opts.MaxTime != nil {
		maxTime := *opts.MaxTime
		results = filter(results, func(res *Result) bool {
			return res.Recipe.TotalTime <= maxTime
		})
	}

	if len(opts.Ingredients) > 0 {
		tags := lowerAll(opts.Ingredients)
		results = filter(results, func(res *Result) bool {
			for _, tag := range tags {
				for _, ing := range res.Recipe.Ingredients {
					if strings.Contains(strings.ToLower(ing.Name), tag) {
						return true
					}
				}
			}
			return false
		})
	}

	if len(opts.ExcludeAllergens) > 0 {
		excluded := lowerAll(opts.ExcludeAllergens)
		results = filter(results, func(res *Result) bool {
			for _, ing := range res.Recipe.Ingredients {
				if ing.AllergenCode == "" {
					continue
				}
				code := strings.ToLower(ing.AllergenCode)
				for _, ex := range excluded {
					if code == ex {
						return false
					}
				}
			}
			return true
		})
	}

	switch opts.SortBy {
	case SortTitle:
		sort.SliceStable(results, func(i, j int) bool {
			return e.collator.CompareString(results[i].Recipe.Title, results[j].Recipe.Title) < 0
		})
	case SortTotalTime:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Recipe.TotalTime < results[j].Recipe.TotalTime
		})
	default:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	return results
}

// Recipes strips ranking and returns just the recipes of a result set.
func Recipes(results []Result) []recipe.Stored {
	out := make([]recipe.Stored, 0, len(results))
	for _, res := range results {
		out = append(out, res.Recipe)
	}
	return out
}

// QuickRecipes returns recipes doable within maxTime minutes, fastest first.
func (e *Engine) QuickRecipes(collection []recipe.Stored, maxTime int) []recipe.Stored {
	return Recipes(e.Search(collection, Options{MaxTime: &maxTime, SortBy: SortTotalTime}))
}

// ByTimeRange returns recipes whose total time is within [minTime, maxTime].
func (e *Engine) ByTimeRange(collection []recipe.Stored, minTime, maxTime int) []recipe.Stored {
	var out []recipe.Stored
	for _, r := range collection {
		if r.TotalTime >= minTime && r.TotalTime <= maxTime {
			out = append(out, r)
		}
	}
	return out
}

// AllIngredients returns the sorted set of distinct ingredient names across
// the collection.
func AllIngredients(collection []recipe.Stored) []string {
	return distinct(collection, func(ing recipe.Ingredient) (string, bool) {
		return ing.Name, true
	})
}

// AllAllergens returns the sorted set of distinct allergen codes across the
// collection.
func AllAllergens(collection []recipe.Stored) []string {
	return distinct(collection, func(ing recipe.Ingredient) (string, bool) {
		return ing.AllergenCode, ing.AllergenCode != ""
	})
}

// Stats summarizes a collection for display surfaces.
type Stats struct {
	TotalRecipes    int     `json:"totalRecipes"`
	AverageTime     float64 `json:"averageTime"`
	IngredientCount int     `json:"ingredientCount"`
	AllergenCount   int     `json:"allergenCount"`
	MinTime         int     `json:"minTime"`
	MaxTime         int     `json:"maxTime"`
}

// Collect computes summary statistics over a collection.
func Collect(collection []recipe.Stored) Stats {
	stats := Stats{
		TotalRecipes:    len(collection),
		IngredientCount: len(AllIngredients(collection)),
		AllergenCount:   len(AllAllergens(collection)),
	}
	if len(collection) == 0 {
		return stats
	}

	total := 0
	stats.MinTime = collection[0].TotalTime
	stats.MaxTime = collection[0].TotalTime
	for _, r := range collection {
		total += r.TotalTime
		if r.TotalTime < stats.MinTime {
			stats.MinTime = r.TotalTime
		}
		if r.TotalTime > stats.MaxTime {
			stats.MaxTime = r.TotalTime
		}
	}
	stats.AverageTime = float64(total) / float64(len(collection))
	return stats
}

// filter keeps results for which keep returns true. keep may mutate the
// result in place (score bonuses, matched fields).
func filter(results []Result, keep func(*Result) bool) []Result {
	out := results[:0]
	for i := range results {
		if keep(&results[i]) {
			out = append(out, results[i])
		}
	}
	return out
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

func distinct(collection []recipe.Stored, pick func(recipe.Ingredient) (string, bool)) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range collection {
		for _, ing := range r.Ingredients {
			v, ok := pick(ing)
			if ok && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}
