package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/toolserver"
	"github.com/spf13/cobra"
)

var mcpTarget string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the pentest tools over MCP stdio for an external planner",
	Long: `Opens one browser session on --target and exposes scrape_page, input_textbox,
click_button, sql_injection_test and xss_test as MCP tools on stdin/stdout.
Logs go to the configured log file, or to stderr when none is set.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVarP(&configFile, "config", "c", "", "config file path")
	mcpCmd.Flags().StringVarP(&mcpTarget, "target", "t", "", "target URL")
	mcpCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// stdout carries the protocol.
	opts := cfg.Log.Options()
	opts.Stdout = false
	opts.Stderr = opts.File == ""
	logrusLogger := logger.NewLogrusLoggerWithOptions(opts)
	defer logrusLogger.Close()

	return toolserver.Serve(ctx, toolserver.Options{
		TargetURL: mcpTarget,
		Version:   Version,
		Browser:   cfg.Agent.Browser,
		Toolset:   cfg.Agent.Toolset,
	}, logrusLogger)
}
