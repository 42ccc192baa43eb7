package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/lnsync/internal/api"
	"github.com/kalambet/lnsync/internal/config"
	"github.com/kalambet/lnsync/internal/period"
	"github.com/kalambet/lnsync/internal/rollup"
)

// --- rollup ---

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Build or rebuild the rollup document for a period",
	Long: `Build or rebuild the rollup document for a period.

Any date inside the period selects it; the default is the current period.

Examples:
  lnsync rollup
  lnsync rollup --date 2025-01-08
  lnsync rollup --remote`,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		remote, _ := cmd.Flags().GetBool("remote")

		if remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			sum, err := remoteRollup(cmd.Context(), client, date)
			if err != nil {
				return err
			}
			printSummary(sum)
			return nil
		}

		anchor, err := resolveAnchor(date, time.Now())
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		printStep("Building rollup for the period ending %s...", period.Format(anchor))
		sum, err := newAggregator(cfg, store).Run(cmd.Context(), anchor)
		if err != nil {
			return err
		}
		printSummary(sum)
		return nil
	},
}

func init() {
	rollupCmd.Flags().String("date", "", "any date in the period, YYYY-MM-DD (default: today)")
	rollupCmd.Flags().Bool("remote", false, "ask the running server to build the rollup")
}

func remoteRollup(ctx context.Context, client *apiClient, date string) (rollup.Summary, error) {
	path := "/rollup"
	if date != "" {
		path += "?date=" + url.QueryEscape(date)
	}
	resp, err := client.post(ctx, path, nil)
	if err != nil {
		return rollup.Summary{}, err
	}
	var sum rollup.Summary
	if err := decodeJSON(resp, &sum); err != nil {
		return rollup.Summary{}, err
	}
	return sum, nil
}

// resolveAnchor maps an optional YYYY-MM-DD date to its period anchor.
func resolveAnchor(date string, now time.Time) (time.Time, error) {
	if date == "" {
		return period.WeekEnding(now), nil
	}
	d, err := period.Parse(date, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q, want YYYY-MM-DD", date)
	}
	return period.WeekEnding(d), nil
}

// --- week ---

var weekCmd = &cobra.Command{
	Use:   "week",
	Short: "Print the anchor date of a period",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		anchor, err := resolveAnchor(date, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), period.Format(anchor))
		return nil
	},
}

func init() {
	weekCmd.Flags().String("date", "", "date, YYYY-MM-DD (default: today)")
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve lnsync tools over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Rollup:  newAggregator(cfg, store),
			Records: store,
		})
		slog.Info("MCP server started (stdio transport)")
		err = server.NewStdioServer(mcpSrv).Listen(cmd.Context(), os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp stdio server: %w", err)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
