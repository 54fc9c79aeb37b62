package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sebuszqo/PaymentMethods/internal/auth"
	"github.com/sebuszqo/PaymentMethods/internal/config"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the payment method tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, dbService, err := openDatabase(cmd.Context(), "DB_CONNECTION_STRING")
			if err != nil {
				return err
			}
			defer dbService.Close()

			if err := dbService.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.Info("migrations complete")
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Give every owner with methods but no default one default method",
		Long: `Find owners whose payment methods have no default and promote the most
recently created method of each. The serve command runs the same repair on
RECONCILE_SCHEDULE.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, dbService, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer dbService.Close()

			registry, err := newRegistry(cfg, log, dbService)
			if err != nil {
				return err
			}

			repaired, err := registry.Reconcile(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "repaired %d owner(s)\n", repaired)
			return err
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		email  string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for local testing",
		Example: `  payment-methods token --user 42 --email holder@example.com
  curl -H "Authorization: Bearer $(payment-methods token --user 42)" localhost:8080/payment-methods`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate("JWT_SECRET"); err != nil {
				return err
			}

			jwtManager, err := auth.NewJWTManager(cfg.JWTSecret)
			if err != nil {
				return err
			}
			token, err := jwtManager.GenerateAccessJWT(userID, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner id to put in the token")
	cmd.Flags().StringVar(&email, "email", "", "optional email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultJWTDuration, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
