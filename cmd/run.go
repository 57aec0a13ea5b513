package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobdesk/naukri-refresh/internal/browser"
	"github.com/jobdesk/naukri-refresh/internal/classify"
	"github.com/jobdesk/naukri-refresh/internal/login"
	"github.com/jobdesk/naukri-refresh/internal/mailbox"
	"github.com/jobdesk/naukri-refresh/internal/observability"
	"github.com/jobdesk/naukri-refresh/internal/profile"
	"github.com/jobdesk/naukri-refresh/internal/status"
)

// newRunCmd creates the `run` command, the single end-to-end refresh pass.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Log in, resolve any OTP challenge, and refresh the resume headline",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Credentials are environment-only. A run without them can only
			// fail later and noisier, so refuse to start.
			if err := cfg.ValidateSecrets(); err != nil {
				return err
			}

			runID := uuid.New().String()
			runDir, err := status.NewRunDir(cfg.Status.Dir, time.Now())
			if err != nil {
				return err
			}
			logger.Info("Starting refresh run",
				zap.String("run_id", runID),
				zap.String("run_dir", runDir.Path()),
			)

			session, err := browser.NewSession(ctx, cfg.Browser, runDir.Path(), logger)
			if err != nil {
				writeFailure(runDir, fmt.Sprintf("browser startup: %v", err), logger)
				return fmt.Errorf("failed to start browser session: %w", err)
			}
			defer session.Close()

			tokens := mailbox.GoogleTokenSource(ctx,
				cfg.Mailbox.ClientID, cfg.Mailbox.ClientSecret, cfg.Mailbox.RefreshToken)
			mailStore := mailbox.NewGmailStore(cfg.Mailbox.Address, tokens, logger,
				mailbox.WithIMAPAddr(cfg.Mailbox.Host, cfg.Mailbox.Port),
				mailbox.WithFolder(cfg.Mailbox.Folder),
			)
			defer mailStore.Close()

			poller := mailbox.NewPoller(mailStore, logger,
				mailbox.WithPollInterval(cfg.Mailbox.PollInterval),
				mailbox.WithRecencyWindow(cfg.Mailbox.RecencyWindow),
				mailbox.WithMaxMessages(cfg.Mailbox.MaxMessages),
			)

			orch := login.New(session, classify.New(logger), poller,
				cfg.Login, cfg.Mailbox, logger)
			outcome := orch.Run(ctx)

			details := map[string]string{"run_id": runID}
			var profileErr error
			if outcome.Kind == login.OutcomeSuccess {
				updater := profile.New(session, cfg.Profile, logger)
				if profileErr = updater.Update(ctx); profileErr != nil {
					logger.Error("Profile update failed", zap.Error(profileErr))
					details["profile_update"] = fmt.Sprintf("failed: %v", profileErr)
				} else {
					details["profile_update"] = "ok"
				}
			}

			if err := runDir.WriteOutcome(outcome, time.Now(), details); err != nil {
				logger.Warn("Failed to write status record", zap.Error(err))
			}

			if outcome.Failed() {
				return fmt.Errorf("run ended with outcome %s: %s", outcome.Kind, outcome.Detail)
			}
			if profileErr != nil {
				return fmt.Errorf("login succeeded but profile update failed: %w", profileErr)
			}

			logger.Info("Refresh run complete",
				zap.String("run_id", runID),
				zap.String("outcome", string(outcome.Kind)),
			)
			return nil
		},
	}
	return runCmd
}

func writeFailure(runDir *status.RunDir, message string, logger *zap.Logger) {
	if err := runDir.WriteFailure(message, time.Now()); err != nil {
		logger.Warn("Failed to write status record", zap.Error(err))
	}
}
