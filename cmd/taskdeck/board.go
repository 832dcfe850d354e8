package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdeck/internal/app"
	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
	"taskdeck/internal/timeline"
)

func tabsCmd() *cobra.Command {
	tabs := &cobra.Command{Use: "tabs", Short: "Project tab order"}
	tabs.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show project tabs in saved order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				return printTabs(s)
			})
		},
	})
	tabs.AddCommand(&cobra.Command{
		Use:   "move <project-id>...",
		Short: "Save a new tab order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				if err := s.Engine.MoveTabs(ctx, args); err != nil {
					return err
				}
				return printTabs(s)
			})
		},
	})
	return tabs
}

func printTabs(s *app.Session) error {
	tabs := s.Engine.ActiveProjectTabs()
	if s.Engine.Tabs.Fallback() {
		fmt.Fprintln(os.Stderr, "tab order is kept in the local cache; the store has no tab_orders collection")
	}
	if viper.GetBool("json") {
		ids := make([]string, len(tabs))
		for i, p := range tabs {
			ids[i] = p.ID
		}
		return printJSON(map[string]any{"ids": ids, "fallback": s.Engine.Tabs.Fallback()})
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "ID", "Name"})
	for i, p := range tabs {
		tw.AppendRow(table.Row{i + 1, p.ID, p.Name})
	}
	tw.Render()
	return nil
}

func timelineCmd() *cobra.Command {
	var months int
	var today string
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Lay tasks out on the day grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if today != "" {
				d, err := time.Parse(domain.DateLayout, today)
				if err != nil {
					return fmt.Errorf("--today: expected YYYY-MM-DD")
				}
				now = d
			}
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				w := s.Timeline(now)
				if months > 0 {
					w = w.WithRangeMonths(months)
				}
				bars := w.Bars(s.Engine.Tasks.Active())
				if viper.GetBool("json") {
					return printJSON(struct {
						Window timeline.Window `json:"window"`
						Width  int             `json:"content_width"`
						Bars   []timeline.Bar  `json:"bars"`
					}{w, w.ContentWidth(), bars})
				}
				fmt.Printf("%s .. %s  (%d days, %dpx)\n", w.Start.Format(domain.DateLayout), w.End().Format(domain.DateLayout),
					w.TotalVisibleDays(), w.ContentWidth())
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Task", "Title", "Left", "Width"})
				for _, b := range bars {
					tw.AppendRow(table.Row{b.TaskID, b.Title, b.Left, b.Width})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&months, "months", 0, "visible range in months (default from config)")
	cmd.Flags().StringVar(&today, "today", "", "pretend today is this date (YYYY-MM-DD)")
	return cmd
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow task and project changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				s.Engine.Tasks.OnChange = func(ch remote.Change[domain.Task]) {
					printChange(ch.Type, ch.Collection, ch.ID, ch.Row.Title, ch.At)
				}
				s.Engine.Projects.OnChange = func(ch remote.Change[domain.Project]) {
					printChange(ch.Type, ch.Collection, ch.ID, ch.Row.Name, ch.At)
				}
				fmt.Fprintln(os.Stderr, "watching; Ctrl-C to stop")
				return s.Engine.Watch(ctx)
			})
		},
	}
}

func printChange(typ remote.ChangeType, collection, id, label, at string) {
	if viper.GetBool("json") {
		_ = printJSON(map[string]string{"type": string(typ), "collection": collection, "id": id, "label": label, "at": at})
		return
	}
	fmt.Printf("%s %-7s %-9s %s %s\n", at, typ, collection, id, label)
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Active task counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *app.Session) error {
				counts, err := s.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Count"})
				tw.AppendRow(table.Row{domain.StatusPending, counts[domain.StatusPending]})
				tw.AppendRow(table.Row{domain.StatusCompleted, counts[domain.StatusCompleted]})
				tw.Render()
				return nil
			})
		},
	}
}
