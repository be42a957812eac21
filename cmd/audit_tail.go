package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/miniiam/apiserver/config"
	"github.com/miniiam/apiserver/internal/audit"
	"github.com/miniiam/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// auditTailCmd streams audit events published by running servers.
var auditTailCmd = &cobra.Command{
	Use:   "audit-tail",
	Short: "Print audit events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer func() { _ = broker.Close() }()

		out := json.NewEncoder(cmd.OutOrStdout())
		err = broker.Subscribe(ctx, cfg.MQ.AuditChannel, func(ctx context.Context, msg mq.Message) error {
			var event audit.Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				// A malformed event would be redelivered forever.
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping malformed event %s: %v\n", msg.ID, err)
				return nil
			}
			return out.Encode(event)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditTailCmd)
}
