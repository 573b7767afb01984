package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/rulekit/pkg/api"
	"github.com/lemonberrylabs/rulekit/pkg/expr"
	"github.com/lemonberrylabs/rulekit/pkg/metrics"
	"github.com/lemonberrylabs/rulekit/pkg/ruleset"
	"github.com/lemonberrylabs/rulekit/pkg/store"
	"github.com/lemonberrylabs/rulekit/pkg/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rule service HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP server port (default 8690, env PORT)")
	serveCmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	serveCmd.Flags().String("rules", "", "Rule file to deploy at startup (env RULES_FILE)")
	serveCmd.Flags().Bool("watch", false, "Reload the rule file when it changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	port := envOrDefault("PORT", "8690")
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		port = fmt.Sprintf("%d", v)
	}
	host := envOrDefault("HOST", "0.0.0.0")
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		host = v
	}
	rulesFile := os.Getenv("RULES_FILE")
	if v, _ := cmd.Flags().GetString("rules"); v != "" {
		rulesFile = v
	}
	watch, _ := cmd.Flags().GetBool("watch")

	parser := expr.New()
	m := metrics.New()
	server := api.New(store.New(), parser, m, logger, map[string]types.Type(nil))

	if rulesFile != "" {
		rs, err := ruleset.Load(rulesFile, parser)
		if err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
		server.ApplyRuleset(rs)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if watch {
		if rulesFile == "" {
			return fmt.Errorf("--watch requires --rules")
		}
		watcher, err := ruleset.NewWatcher(rulesFile, logger)
		if err != nil {
			return err
		}
		go func() {
			err := watcher.Watch(ctx, func() error {
				rs, err := ruleset.Load(rulesFile, parser)
				if err != nil {
					return err
				}
				server.ApplyRuleset(rs)
				return nil
			})
			if err != nil {
				logger.Error("rule watcher exited", "error", err)
			}
		}()
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
		if err := server.Shutdown(); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", host, port)
	logger.Info("rulekit listening", "addr", addr, "rules_file", rulesFile, "watch", watch)
	return server.Listen(addr)
}
