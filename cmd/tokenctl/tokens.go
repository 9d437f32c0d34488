package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newIssueCmd(root *rootOptions) *cobra.Command {
	var (
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue [subject]",
		Short: "Issue a bearer token for a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.tokens(ttl)
			if err != nil {
				return err
			}
			token, exp, err := svc.Issue(args[0], roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "roles to embed in the token (comma separated)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

type verifyOutput struct {
	Subject   string     `json:"subject"`
	Roles     []string   `json:"roles,omitempty"`
	Issuer    string     `json:"issuer,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func newVerifyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a token signature and expiry and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.tokens(0)
			if err != nil {
				return err
			}
			token := strings.TrimPrefix(strings.TrimSpace(args[0]), "Bearer ")
			subject, claims, err := svc.Subject(token)
			if err != nil {
				return fmt.Errorf("invalid token: %w", err)
			}

			out := verifyOutput{Subject: subject, Roles: claims.Roles, Issuer: claims.Issuer}
			if claims.ExpiresAt != nil {
				exp := claims.ExpiresAt.Time.UTC()
				out.ExpiresAt = &exp
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
