package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRevokeCmd revokes one active certificate.
func NewRevokeCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "revoke <certificate-id>",
		Short: "Revoke an active certificate",
		Args:  cobra.ExactArgs(1),
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

			cert, err := a.services.Certificate().Revoke(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s (%s)\n", cert.CertificateNumber, cert.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the certificate")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}
