package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"digestbot/internal/app"
	logx "digestbot/pkg/logx"
)

var (
	flagConfig  string
	flagEnvFile string
	flagUsers   []string
	flagInclude []string
)

var rootCmd = &cobra.Command{
	Use:           "digestbot",
	Short:         "Daily Notion action item digests for Slack",
	Long:          "digestbot queries a Notion actions database every morning and posts each user's open action items to Slack (and optionally Telegram).",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "./config.json", "path to config file (json or yaml)")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file with NOTION_API_KEY / SLACK_API_KEY")

	onceCmd.Flags().StringSliceVar(&flagUsers, "user", nil, "only send digests to these users (repeatable)")
	previewCmd.Flags().StringSliceVar(&flagUsers, "user", nil, "user to preview")
	_ = previewCmd.MarkFlagRequired("user")
	usersCmd.Flags().StringSliceVar(&flagInclude, "include", nil, "only list users with these names (\"all\" lists everyone)")

	rootCmd.AddCommand(runCmd, onceCmd, previewCmd, usersCmd, versionCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler until interrupted (default)",
	RunE:  runDaemon,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single digest cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := app.NewApp(flagConfig, app.Options{EnvFile: flagEnvFile, Users: flagUsers})
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.RunCycle(ctx); err != nil {
			return err
		}
		a.Logger().Info("stopping", logx.String("reason", string(app.StopOnceDone)))
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print a user's digest without sending it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(flagConfig, app.Options{EnvFile: flagEnvFile, NoConsole: true})
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, name := range flagUsers {
			lines, err := a.Preview(cmd.Context(), name)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintln(out, l)
			}
		}
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List Notion users and their ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(flagConfig, app.Options{EnvFile: flagEnvFile, NoConsole: true})
		if err != nil {
			return err
		}
		defer a.Close()

		people, err := a.ListUsers(cmd.Context(), flagInclude...)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tEMAIL\tID")
		for _, p := range people {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Email, p.ID)
		}
		return tw.Flush()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "digestbot %s (commit: %s)\n", version, commit)
	},
}

func runDaemon(cmd *cobra.Command, args []string) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.NewApp(flagConfig, app.Options{EnvFile: flagEnvFile})
	if err != nil {
		return err
	}
	if err := a.Start(cmd.Context()); err != nil {
		_ = a.Close()
		return fmt.Errorf("start: %w", err)
	}

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return a.Stop(stopCtx, reason)
}
