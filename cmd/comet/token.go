package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/comet/internal/httpapi/middleware"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a signed bearer token for the ops API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()

		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		tok, err := middleware.IssueToken(cfg.JWTSecret, tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "ops", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
