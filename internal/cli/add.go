package cli

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mealplanner/pantry/internal/storage"
)

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <recipe.json>",
		Short: "Validate and store a recipe",
		Long: `Validate a recipe JSON document and store it in the configured backend.

The document is validated first; an invalid recipe is rejected and its
findings are printed. A recipe whose title matches an existing recipe
(case-insensitive) is rejected as a duplicate.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runAdd(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	doc, err := readJSONFile(path)
	if err != nil {
		formatter.Error(ErrCodeInput, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	app, err := newApp(cmd.Context(), opts)
	if err != nil {
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return err
	}
	defer app.Close()

	stored, err := app.store.PutRecipe(cmd.Context(), doc)
	if err != nil {
		var vErr *storage.ValidationFailedError
		if errors.As(err, &vErr) {
			if formatter.Format == "json" {
				formatter.Error(ErrCodeValidation, vErr.Result.Summary, vErr.Result.Errors)
			} else {
				fmt.Fprintln(formatter.Writer, renderResult(vErr.Result))
			}
			return NewExitError(ExitFailure, vErr.Result.Summary)
		}
		var dupErr *storage.DuplicateTitleError
		if errors.As(err, &dupErr) {
			formatter.Error(ErrCodeStorage, dupErr.Error(), nil)
			return NewExitError(ExitFailure, dupErr.Error())
		}
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "store recipe", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(stored)
	}
	fmt.Fprintf(formatter.Writer, "%s stored %q as %s\n",
		color.New(color.FgGreen).Sprint("OK"), stored.Title, stored.UUID)
	return nil
}
