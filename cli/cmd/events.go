package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/hookrelay/common/messaging"
	natsclient "github.com/telhawk-systems/hookrelay/common/messaging/nats"
)

func newEventsCmd(a *app) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Watch relay delivery events",
	}

	var (
		natsURL string
		kind    string
	)
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print delivery events published by relays",
		Long: `Subscribe to the relay's delivery events on NATS and print one line per
relayed request until interrupted.`,
		Example: `  relayctl events tail --nats-url nats://localhost:4222 --kind pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := messaging.SubjectDeliveriesAll
			if kind != "" {
				subject = messaging.DeliverySubject(kind)
			}

			natsCfg := natsclient.DefaultConfig()
			natsCfg.URL = natsURL
			natsCfg.Name = "relayctl"
			natsCfg.MaxReconnects = 10
			client, err := natsclient.NewClient(natsCfg, a.logger(cmd).Logger)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := a.printer(cmd)
			_, err = client.Subscribe(subject, func(_ context.Context, msg *messaging.Message) error {
				if a.format == "json" {
					p.Plain("%s", msg.Data)
					return nil
				}
				var event messaging.DeliveryEvent
				if err := json.Unmarshal(msg.Data, &event); err != nil {
					return fmt.Errorf("decode delivery event: %w", err)
				}
				p.Plain("%s", formatEvent(event))
				return nil
			})
			if err != nil {
				return err
			}

			p.Info("Listening on %s (Ctrl-C to stop)", subject)
			<-ctx.Done()
			return nil
		},
	}
	tailCmd.Flags().StringVar(&natsURL, "nats-url", "nats://localhost:4222", "NATS server URL")
	tailCmd.Flags().StringVarP(&kind, "kind", "k", "", "only show one kind: chat, pdf, image, audio, video")

	eventsCmd.AddCommand(tailCmd)
	return eventsCmd
}

// formatEvent renders one delivery as a single line.
func formatEvent(e messaging.DeliveryEvent) string {
	outcome := "ok"
	if !e.Success {
		outcome = "FAILED"
	}
	status := "-"
	if e.HTTPStatus != 0 {
		status = fmt.Sprintf("%d", e.HTTPStatus)
	}
	line := fmt.Sprintf("%s  %-5s  %-6s  %3s  %s%s  %s",
		e.CompletedAt.UTC().Format(time.RFC3339),
		e.Kind,
		outcome,
		status,
		e.WebhookHost,
		e.WebhookPath,
		time.Duration(e.DurationMS)*time.Millisecond)
	if e.Error != "" {
		line += "  " + e.Error
	}
	return line
}
