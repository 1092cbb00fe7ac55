package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/hookrelay/relay/pkg/webhook"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a chat message to a workflow",
		Long: `Send a chat message to an n8n webhook and print the workflow's reply.

With no arguments, or with "-", the message is read from stdin.`,
		Example: `  relayctl chat "What is on my calendar today?"
  echo "summarize this" | relayctl chat -w https://n8n.example.com/webhook/chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := chatText(cmd, args)
			if err != nil {
				return err
			}
			return a.deliver(cmd, webhook.ChatRequest{Text: text, SentAt: a.now()})
		},
	}
}

func chatText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read message from stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("message is empty")
	}
	return text, nil
}
