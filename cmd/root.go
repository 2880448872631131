// Package cmd defines and implements the CLI commands for the skillfolder
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chirag2653/website-to-skill-folder/internal/app"
	"github.com/chirag2653/website-to-skill-folder/internal/config"
	"github.com/chirag2653/website-to-skill-folder/internal/logging"
)

var (
	cfgFile string
	// outputDir, when set by the sync command's --output flag, redirects
	// the skill folder to a local directory regardless of the configured
	// output backend.
	outputDir string
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can replace
// it with a factory that builds against in-memory backends.
var newApp = func(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if outputDir != "" {
		cfg.Output.Backend = "local"
		cfg.Output.Dir = outputDir
	}
	return app.New(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skillfolder",
		Short: "Turns a website into a searchable skill folder of markdown documents.",
		Long: `skillfolder discovers the pages of a website, scrapes them through the
Firecrawl batch API, and maintains a local folder of markdown documents with
YAML frontmatter plus a SKILL.md index. Repeat runs are incremental: only
new or possibly changed pages are re-fetched, and pages that stay missing
across several runs are removed.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default uses built-in defaults plus SKILLFOLDER_* env vars)")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	logging.InitLogger(false)
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("command execution failed", zap.Error(err))
	}
}
