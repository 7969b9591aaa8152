package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/quiz-service/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const sweepTimeout = time.Minute

// NewSweepCmd expires overdue certificates once and exits.
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire certificates past their expiry date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.services.Certificate().ExpireDue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d certificates\n", n)
			return nil
		},
	}
}

// startCertificateSweep runs ExpireDue on schedule until the returned cron
// is stopped.
func startCertificateSweep(schedule string, certs services.CertificateService, logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		n, err := certs.ExpireDue(ctx)
		if err != nil {
			logger.Error("Certificate expiry sweep failed", "error", err)
			return
		}
		logger.Info("Certificate expiry sweep finished", "expired", n)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid CERTIFICATE_SWEEP_SCHEDULE %q: %w", schedule, err)
	}

	c.Start()
	logger.Info("Certificate expiry sweep scheduled", "schedule", schedule)
	return c, nil
}
