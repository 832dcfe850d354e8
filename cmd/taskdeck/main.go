package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdeck/internal/app"
)

var rootCmd = &cobra.Command{
	Use:   "taskdeck",
	Short: "Taskdeck CLI",
	Long: `Taskdeck is a personal task and project dashboard.
- Tasks belong to an owner and optionally to a project; they are pending or completed.
- Projects appear as tabs; the tab order is saved per owner and survives a missing tab_orders table by living in the local cache.
- Reorders apply immediately and are written in the background.
- The timeline lays task bars on a day grid starting a week before today.
- The store is a local SQLite file or a hosted taskdeck server (taskdeck serve).`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.BoolP("verbose", "v", false, "debug logging")
	flags.String("owner", "", "owner id (overrides config)")
	flags.String("store-url", "", "hosted store API base, e.g. http://127.0.0.1:8787/v0")
	flags.String("token", "", "bearer token for the hosted store")
	for _, name := range []string{"workspace", "json", "verbose", "owner", "store-url", "token"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(tabsCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(targetCmd())
	rootCmd.AddCommand(focusCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

// --- helpers ---

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func withSession(ctx context.Context, fn func(context.Context, *app.Session) error) error {
	return openSession(ctx, false, fn)
}

// withStore opens the session without loading the dashboard.
func withStore(ctx context.Context, fn func(context.Context, *app.Session) error) error {
	return openSession(ctx, true, fn)
}

func openSession(ctx context.Context, skipLoad bool, fn func(context.Context, *app.Session) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := app.ResolveConfig(workspace, viper.GetString("owner"))
	if err != nil {
		return err
	}
	if u := viper.GetString("store-url"); u != "" {
		cfg.Store.URL = u
		cfg.Store.Path = ""
	}
	if tok := viper.GetString("token"); tok != "" {
		cfg.Store.Token = tok
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s, err := app.Open(ctx, app.Options{Workspace: workspace, Config: cfg, Logger: newLogger(), SkipLoad: skipLoad})
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) string {
	if i == nil {
		return ""
	}
	return fmt.Sprint(*i)
}
