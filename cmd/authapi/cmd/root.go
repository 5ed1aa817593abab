package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ignatius32/keycloak-auth-template/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "authapi",
	Short: "Authentication API bridging web clients to Keycloak",
	Long: `Authentication API server that authenticates users against Keycloak,
issues short-lived session tokens, and stores the profile data Keycloak
does not manage.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
