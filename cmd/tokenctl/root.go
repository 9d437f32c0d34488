package main

import (
	"errors"
	"os"
	"time"

	"courier-gateway/middleware/auth"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	secret string
	issuer string
	now    func() time.Time
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{now: time.Now}

	cmd := &cobra.Command{
		Use:           "tokenctl",
		Short:         "Operator tools for the courier gateway",
		Long:          "Issue and inspect bearer tokens and inspect rate-limit windows stored in Redis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.secret, "secret", "", "HMAC secret (default: $JWT_SECRET)")
	cmd.PersistentFlags().StringVar(&opts.issuer, "issuer", "", "token issuer (default: $JWT_ISSUER)")

	cmd.AddCommand(newIssueCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newWindowCmd(opts))
	return cmd
}

func (o *rootOptions) tokens(ttl time.Duration) (*auth.TokenService, error) {
	secret := o.secret
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return nil, errors.New("no secret: pass --secret or set JWT_SECRET")
	}
	issuer := o.issuer
	if issuer == "" {
		issuer = os.Getenv("JWT_ISSUER")
	}

	opts := []auth.TokenOption{auth.WithIssuer(issuer), auth.WithTokenClock(o.now)}
	if ttl > 0 {
		opts = append(opts, auth.WithTTL(ttl))
	}
	return auth.NewTokenService(secret, opts...)
}
