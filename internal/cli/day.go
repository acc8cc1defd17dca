package cli

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mealplanner/pantry/internal/daylog"
	"github.com/mealplanner/pantry/internal/storage"
)

var isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NewDayCommand creates the day command group.
func NewDayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "day",
		Short: "Manage per-day meal logs",
		Long: `Manage the append-only meal log kept for each calendar date.

Assignments and removals are recorded as events; the day's current view
is produced by replaying them in timestamp order.`,
	}

	cmd.AddCommand(newDayAddCommand(rootOpts))
	cmd.AddCommand(newDayDelCommand(rootOpts))
	cmd.AddCommand(newDayShowCommand(rootOpts))
	cmd.AddCommand(newDayCompactCommand(rootOpts))

	return cmd
}

func newDayAddCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "add <date> <recipe-uuid>",
		Short:         "Assign a recipe to a day",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDayEvent(rootOpts, args[0], args[1], daylog.OpAdd, cmd)
		},
	}
	return cmd
}

func newDayDelCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "del <date> <recipe-uuid>",
		Short:         "Remove a recipe's assignment from a day",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDayEvent(rootOpts, args[0], args[1], daylog.OpDel, cmd)
		},
	}
	return cmd
}

func runDayEvent(opts *RootOptions, isoDate, recipeUUID string, op daylog.Op, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if !isoDatePattern.MatchString(isoDate) {
		msg := fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", isoDate)
		formatter.Error(ErrCodeInput, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	app, err := newApp(cmd.Context(), opts)
	if err != nil {
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return err
	}
	defer app.Close()

	// The app's generator sequences identifiers minted within the same
	// millisecond.
	event := daylog.Event{
		ID:                app.ids.Generate(),
		ISODate:           isoDate,
		Op:                op,
		RecipeUUID:        recipeUUID,
		OccurredAtEpochMs: time.Now().UnixMilli(),
	}

	// Adds carry a denormalized summary so the day view renders without
	// another lookup. The recipe must exist; removals take the UUID as-is.
	if op == daylog.OpAdd {
		stored, err := app.store.GetRecipe(cmd.Context(), recipeUUID)
		if errors.Is(err, storage.ErrNotFound) {
			msg := fmt.Sprintf("recipe %s not found", recipeUUID)
			formatter.Error(ErrCodeNotFound, msg, nil)
			return NewExitError(ExitFailure, msg)
		}
		if err != nil {
			formatter.Error(ErrCodeStorage, err.Error(), nil)
			return WrapExitError(ExitCommandError, "load recipe", err)
		}
		event.Snapshot = &daylog.Snapshot{
			Title:     stored.Title,
			ImageURL:  stored.ImageURL,
			TotalTime: stored.TotalTime,
		}
	}

	log, err := app.store.AppendDayEvents(cmd.Context(), isoDate, []daylog.Event{event})
	if err != nil {
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "append day event", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(log)
	}
	fmt.Fprintf(formatter.Writer, "%s %s %s on %s (%d events)\n",
		color.New(color.FgGreen).Sprint("OK"), op, recipeUUID, isoDate, len(log.Events))
	return nil
}

func newDayShowCommand(rootOpts *RootOptions) *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:           "show <date>",
		Short:         "Show a day's current meal assignments",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDayShow(rootOpts, args[0], showEvents, cmd)
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "show the raw event journal instead of the materialized view")

	return cmd
}

func runDayShow(opts *RootOptions, isoDate string, showEvents bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if !isoDatePattern.MatchString(isoDate) {
		msg := fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", isoDate)
		formatter.Error(ErrCodeInput, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	app, err := newApp(cmd.Context(), opts)
	if err != nil {
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return err
	}
	defer app.Close()

	if showEvents {
		log, err := app.store.ReadDayLog(cmd.Context(), isoDate)
		if errors.Is(err, storage.ErrNotFound) {
			log = &daylog.Log{ISODate: isoDate, Events: []daylog.Event{}}
		} else if err != nil {
			formatter.Error(ErrCodeStorage, err.Error(), nil)
			return WrapExitError(ExitCommandError, "read day log", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(log)
		}
		for _, ev := range log.Events {
			fmt.Fprintf(formatter.Writer, "%s  %s %s at %d\n", ev.ID, ev.Op, ev.RecipeUUID, ev.OccurredAtEpochMs)
		}
		if len(log.Events) == 0 {
			fmt.Fprintf(formatter.Writer, "no events for %s\n", isoDate)
		}
		return nil
	}

	meals, err := storage.Meals(cmd.Context(), app.store, isoDate)
	if err != nil {
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "read day log", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(meals)
	}

	if len(meals) == 0 {
		fmt.Fprintf(formatter.Writer, "no meals planned for %s\n", isoDate)
		return nil
	}
	for _, meal := range meals {
		title := meal.RecipeUUID
		if meal.Snapshot != nil {
			title = fmt.Sprintf("%s (%dm)", meal.Snapshot.Title, meal.Snapshot.TotalTime)
		}
		fmt.Fprintf(formatter.Writer, "%s  %s\n", color.New(color.FgCyan).Sprint(meal.RecipeUUID), title)
	}
	return nil
}

func newDayCompactCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "compact <date>",
		Short:         "Rewrite a day's log to its minimal equivalent form",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDayCompact(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runDayCompact(opts *RootOptions, isoDate string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if !isoDatePattern.MatchString(isoDate) {
		msg := fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", isoDate)
		formatter.Error(ErrCodeInput, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	app, err := newApp(cmd.Context(), opts)
	if err != nil {
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return err
	}
	defer app.Close()

	if err := app.store.CompactDayLog(cmd.Context(), isoDate); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			msg := fmt.Sprintf("no log for %s", isoDate)
			formatter.Error(ErrCodeNotFound, msg, nil)
			return NewExitError(ExitFailure, msg)
		}
		formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "compact day log", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]string{"isoDate": isoDate})
	}
	fmt.Fprintf(formatter.Writer, "%s compacted %s\n", color.New(color.FgGreen).Sprint("OK"), isoDate)
	return nil
}
