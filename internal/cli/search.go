package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mealplanner/pantry/internal/search"
)

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		query            string
		maxTime          int
		ingredients      []string
		excludeAllergens []string
		limit            int
		sortBy           string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search and filter stored recipes",
		Long: `Search stored recipes by text query and filters.

A query matches against title, description, and ingredient names, with
title matches ranked highest. Filters narrow the result set; allergen
exclusion always wins over a text match.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sopts := search.Options{
				Query:            query,
				Ingredients:      ingredients,
				ExcludeAllergens: excludeAllergens,
				Limit:            limit,
				SortBy:           sortBy,
			}
			if cmd.Flags().Changed("max-time") {
				sopts.MaxTime = &maxTime
			}
			return runSearch(rootOpts, sopts, cmd)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "text query")
	cmd.Flags().IntVar(&maxTime, "max-time", 0, "maximum total time in minutes (inclusive)")
	cmd.Flags().StringSliceVar(&ingredients, "ingredient", nil, "require one of these ingredients (repeatable)")
	cmd.Flags().StringSliceVar(&excludeAllergens, "exclude-allergen", nil, "exclude recipes carrying this allergen code (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results (0 = all)")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort order (title|total_time|relevance)")

	return cmd
}

func runSearch(opts *RootOptions, sopts search.Options, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	app, err := newApp(cmd.Context(), opts)
	if err != nil {
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return err
	}
	defer app.Close()

	collection, err := app.store.ListRecipes(cmd.Context())
	if err != nil {
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "search recipes", err)
	}

	// Rank locally so scores and matched fields survive into the output.
	results := app.engine.Search(collection, sopts)

	if formatter.Format == "json" {
		return formatter.Success(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(formatter.Writer, "no recipes matched")
		return nil
	}

	for _, res := range results {
		line := fmt.Sprintf("%s  %s (%dm)",
			color.New(color.FgCyan).Sprint(res.Recipe.UUID), res.Recipe.Title, res.Recipe.TotalTime)
		if len(res.MatchedFields) > 0 {
			line += fmt.Sprintf("  score=%.1f [%s]", res.Score, strings.Join(res.MatchedFields, ","))
		}
		fmt.Fprintln(formatter.Writer, line)
	}
	return nil
}
