package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List all stored recipes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, cmd)
		},
	}

	return cmd
}

func runList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	app, err := newApp(cmd.Context(), opts)
	if err != nil {
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return err
	}
	defer app.Close()

	recipes, err := app.store.ListRecipes(cmd.Context())
	if err != nil {
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "list recipes", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(recipes)
	}

	if len(recipes) == 0 {
		fmt.Fprintln(formatter.Writer, "no recipes stored")
		return nil
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UUID\tTITLE\tTIME\tINGREDIENTS")
	for _, r := range recipes {
		fmt.Fprintf(w, "%s\t%s\t%dm\t%d\n", r.UUID, r.Title, r.TotalTime, len(r.Ingredients))
	}
	w.Flush()
	fmt.Fprint(formatter.Writer, b.String())
	return nil
}
