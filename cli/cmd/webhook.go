package cmd

import (
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/hookrelay/common/middleware"
	"github.com/telhawk-systems/hookrelay/relay/pkg/webhook"
)

// connectionTestMessage is what the workflow sees for a connection test.
const connectionTestMessage = "Test connection from frontend"

func newWebhookCmd(a *app) *cobra.Command {
	webhookCmd := &cobra.Command{
		Use:   "webhook",
		Short: "Webhook utilities",
	}

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Check that a webhook is reachable",
		Long: `Post a test message directly to the webhook, without the relay, and report
whether it answered with a 2xx status.`,
		Example: `  relayctl webhook test -w https://n8n.example.com/webhook-test/abc`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.target()
			if err != nil {
				return err
			}

			direct := &webhook.DirectDeliverer{
				Forwarder: webhook.NewForwarder(a.effectiveTimeout(cmd)),
				UserAgent: userAgent,
				Now:       a.now,
			}
			// A relay-less selector reports transport failures with guidance.
			selector := &webhook.Selector{Direct: direct, Logger: a.logger(cmd), Now: a.now}

			ctx, _ := middleware.NewRequestID(commandContext(cmd))
			res := selector.Deliver(ctx, webhook.ChatRequest{
				Text:      connectionTestMessage,
				SentAt:    a.now(),
				SourceTag: webhook.SourceWebhookTest,
			}, target)

			if res.OK && a.format == "text" {
				a.printer(cmd).Success("Webhook reachable (HTTP %d)", res.HTTPStatus)
				return nil
			}
			return a.printResult(cmd, res)
		},
	}

	webhookCmd.AddCommand(testCmd)
	return webhookCmd
}
