package main

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdeck/internal/app"
	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
)

var periodPattern = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}$`)

func targetCmd() *cobra.Command {
	t := &cobra.Command{Use: "target", Short: "Monthly sales targets"}
	t.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sales targets by period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				items, err := s.SalesTargets.List(ctx, s.Config.Owner, remote.Query{OrderBy: "period", Descending: true})
				if err != nil {
					return err
				}
				return printTargets(items)
			})
		},
	})
	t.AddCommand(targetSetCmd())
	return t
}

func targetSetCmd() *cobra.Command {
	var target, actual float64
	cmd := &cobra.Command{
		Use:   "set <YYYY-MM>",
		Short: "Create or update the target for a month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			period := args[0]
			if !periodPattern.MatchString(period) {
				return fmt.Errorf("period must be YYYY-MM")
			}
			return withStore(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				owner := s.Config.Owner
				existing, err := s.SalesTargets.List(ctx, owner, remote.Query{Filters: map[string]string{"period": period}})
				if err != nil {
					return err
				}
				var saved domain.SalesTarget
				if len(existing) == 0 {
					saved, err = s.SalesTargets.Insert(ctx, domain.SalesTarget{OwnerID: owner, Period: period, TargetAmount: target, ActualAmount: actual})
				} else {
					row := existing[0]
					if cmd.Flags().Changed("amount") {
						row.TargetAmount = target
					}
					if cmd.Flags().Changed("actual") {
						row.ActualAmount = actual
					}
					saved, err = s.SalesTargets.Update(ctx, row)
				}
				if err != nil {
					return err
				}
				return printTargets([]domain.SalesTarget{saved})
			})
		},
	}
	cmd.Flags().Float64Var(&target, "amount", 0, "target amount")
	cmd.Flags().Float64Var(&actual, "actual", 0, "actual amount so far")
	return cmd
}

func printTargets(items []domain.SalesTarget) error {
	if viper.GetBool("json") {
		if items == nil {
			items = []domain.SalesTarget{}
		}
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Period", "Target", "Actual", "Achieved"})
	for _, it := range items {
		tw.AppendRow(table.Row{it.Period, it.TargetAmount, it.ActualAmount, fmt.Sprintf("%.1f%%", it.Achievement())})
	}
	tw.Render()
	return nil
}

func focusCmd() *cobra.Command {
	f := &cobra.Command{Use: "focus", Short: "Focus-mode goals"}
	f.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List focus sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				items, err := s.FocusModes.List(ctx, s.Config.Owner, remote.Query{OrderBy: "started_at", Descending: true})
				if err != nil {
					return err
				}
				return printFocus(items)
			})
		},
	})
	f.AddCommand(focusStartCmd())
	f.AddCommand(focusTickCmd())
	f.AddCommand(focusEndCmd())
	return f
}

func focusStartCmd() *cobra.Command {
	var goal string
	var target int
	cmd := &cobra.Command{
		Use:   "start <title>",
		Short: "Start a focus session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				fm, err := s.FocusModes.Insert(ctx, domain.FocusMode{
					OwnerID:     s.Config.Owner,
					Title:       args[0],
					Goal:        goal,
					TargetCount: target,
					IsActive:    true,
				})
				if err != nil {
					return err
				}
				return printFocus([]domain.FocusMode{fm})
			})
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "what done looks like")
	cmd.Flags().IntVar(&target, "target", 0, "number of units to complete")
	return cmd
}

func focusTickCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tick <id>",
		Short: "Record completed units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateFocus(cmd.Context(), args[0], func(fm domain.FocusMode) domain.FocusMode {
				fm.CompletedCount += n
				return fm
			})
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 1, "units completed")
	return cmd
}

func focusEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <id>",
		Short: "End a focus session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateFocus(cmd.Context(), args[0], func(fm domain.FocusMode) domain.FocusMode {
				ended := domain.FormatTime(time.Now())
				fm.IsActive = false
				fm.EndedAt = &ended
				return fm
			})
		},
	}
}

func updateFocus(ctx context.Context, id string, mutate func(domain.FocusMode) domain.FocusMode) error {
	return withStore(ctx, func(ctx context.Context, s *app.Session) error {
		fm, err := s.FocusModes.Get(ctx, s.Config.Owner, id)
		if err != nil {
			return err
		}
		fm, err = s.FocusModes.Update(ctx, mutate(fm))
		if err != nil {
			return err
		}
		return printFocus([]domain.FocusMode{fm})
	})
}

func printFocus(items []domain.FocusMode) error {
	if viper.GetBool("json") {
		if items == nil {
			items = []domain.FocusMode{}
		}
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Progress", "Active", "Started", "Ended"})
	for _, it := range items {
		tw.AppendRow(table.Row{it.ID, it.Title, fmt.Sprintf("%d/%d (%d%%)", it.CompletedCount, it.TargetCount, it.Progress()),
			it.IsActive, it.StartedAt, deref(it.EndedAt)})
	}
	tw.Render()
	return nil
}
