package main

import (
	"context"
	"fmt"
	"time"

	"courier-gateway/middleware/ratelimit/application"
	"courier-gateway/middleware/ratelimit/domain"
	"courier-gateway/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newWindowCmd(root *rootOptions) *cobra.Command {
	var (
		addr     string
		password string
		db       int
		prefix   string
	)
	cmd := &cobra.Command{
		Use:   "window [client]",
		Short: "Show how many requests a client has in each rate-limit window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
			defer rdb.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			store := infra.NewRedisWindowStore(rdb, infra.WithWindowPrefix(prefix))
			return printWindows(ctx, cmd, store, domain.Key(args[0]), root.now())
		},
	}
	cmd.Flags().StringVar(&addr, "redis-addr", "localhost:6379", "redis address")
	cmd.Flags().StringVar(&password, "redis-password", "", "redis password")
	cmd.Flags().IntVar(&db, "redis-db", 0, "redis database")
	cmd.Flags().StringVar(&prefix, "prefix", "ratelimit:window", "window key prefix")
	return cmd
}

func printWindows(ctx context.Context, cmd *cobra.Command, store domain.WindowStore, client domain.Key, now time.Time) error {
	rows := []struct {
		label  string
		key    domain.Key
		window time.Duration
	}{
		{"general, last minute", application.GeneralKey(client), time.Minute},
		{"general, last hour", application.GeneralKey(client), time.Hour},
		{"login, last hour", application.LoginKey(client), time.Hour},
	}
	for _, row := range rows {
		n, err := store.Count(ctx, row.key, now, row.window)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-22s %d\n", row.label, n)
	}
	return nil
}
