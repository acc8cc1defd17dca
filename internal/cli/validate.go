package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mealplanner/pantry/internal/config"
	"github.com/mealplanner/pantry/internal/validate"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var asIngredient bool

	cmd := &cobra.Command{
		Use:   "validate <recipe.json>",
		Short: "Validate a recipe document without storing it",
		Long: `Validate a recipe JSON document against the schema and field rules.

Reads the document from the given file, or from standard input when the
path is "-". Exits 0 when the document is valid, 1 when it is not.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], asIngredient, cmd)
		},
	}

	cmd.Flags().BoolVar(&asIngredient, "ingredient", false, "validate an ingredient document instead of a recipe")

	return cmd
}

func runValidate(opts *RootOptions, path string, asIngredient bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	doc, err := readJSONFile(path)
	if err != nil {
		formatter.Error(ErrCodeInput, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	// Standalone validation still honors the configured warning threshold;
	// no storage backend is opened for it.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		formatter.Error(ErrCodeInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	validator := newValidator(cfg)
	var result validate.Result
	if asIngredient {
		result = validator.ValidateIngredient(doc)
	} else {
		result = validator.ValidateRecipe(doc)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer, renderResult(result))
	}

	if !result.IsValid {
		return NewExitError(ExitFailure, result.Summary)
	}
	return nil
}

// renderResult renders a validation result for terminals, with errors in red
// and warnings in yellow.
func renderResult(result validate.Result) string {
	var b strings.Builder

	if result.IsValid {
		b.WriteString(color.New(color.FgGreen).Sprint("VALID"))
	} else {
		b.WriteString(color.New(color.FgRed).Sprint("INVALID"))
	}
	b.WriteString("  ")
	b.WriteString(result.Summary)

	for _, e := range result.Errors {
		b.WriteString("\n  ")
		if e.Severity == validate.SeverityWarning {
			b.WriteString(color.New(color.FgYellow).Sprint("warning"))
		} else {
			b.WriteString(color.New(color.FgRed).Sprint("error"))
		}
		fmt.Fprintf(&b, "  %s: %s", e.Path, e.Message)
	}
	return b.String()
}
