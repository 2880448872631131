package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chirag2653/website-to-skill-folder/internal/pipeline"
)

type syncFlags struct {
	forceRefresh bool
	skipRemote   bool
	maxPages     int
	description  string
}

// newSyncCmd creates the 'sync' subcommand, which runs one full sync for a
// single site and exits.
func newSyncCmd() *cobra.Command {
	flags := &syncFlags{}
	cmd := &cobra.Command{
		Use:   "sync <site>",
		Short: "Syncs one website into its skill folder",
		Long: `Runs one discovery, diff, scrape, reconcile cycle for the given site and
writes the resulting documents to the configured output store. The site may
be a bare domain or any page URL on it.

If a previous run was interrupted after submitting a batch job, the job is
resumed instead of starting a new one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncCommand(cmd, args[0], flags)
		},
	}
	cmd.Flags().BoolVar(&flags.forceRefresh, "force-refresh", false, "re-fetch every discovered page, ignoring stored fingerprints")
	cmd.Flags().BoolVar(&flags.skipRemote, "skip-remote", false, "only re-render SKILL.md from persisted state, no remote calls")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "cap on pages fetched this run (0 means no cap)")
	cmd.Flags().StringVar(&flags.description, "description", "", "manual site description for SKILL.md, overriding the derived one")
	cmd.Flags().StringVar(&outputDir, "output", "", "write the skill folder to this directory instead of the configured output store")
	return cmd
}

func runSyncCommand(cmd *cobra.Command, rawSite string, flags *syncFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger

	report, err := appInstance.Runner.Run(cmd.Context(), rawSite, pipeline.Options{
		ForceRefresh: flags.forceRefresh,
		SkipRemote:   flags.skipRemote,
		MaxPages:     flags.maxPages,
		Description:  flags.description,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			return fmt.Errorf("a sync for %s is already running", rawSite)
		}
		if report.ResumeHandle != "" {
			logger.Warn("sync failed with a resumable job, rerun to pick it up",
				zap.String("handle", report.ResumeHandle))
		}
		return fmt.Errorf("sync %s: %w", rawSite, err)
	}

	logger.Info("sync finished",
		zap.String("site", report.Site),
		zap.String("run_id", report.RunID),
		zap.String("status", string(report.Status)),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed),
		zap.Int("deferred", report.Deferred),
		zap.Int("credits_used", report.CreditsUsed),
	)
	fmt.Fprintf(cmd.OutOrStdout(),
		"%s: %s (created %d, updated %d, unchanged %d, deleted %d, failed %d)\n",
		report.Site, report.Status,
		report.Created, report.Updated, report.Unchanged, report.Deleted, report.Failed)
	if report.OutputDir != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "skill folder: %s\n", report.OutputDir)
	}
	return nil
}
