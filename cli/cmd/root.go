package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/hookrelay/cli/internal/config"
	"github.com/telhawk-systems/hookrelay/cli/pkg/output"
	"github.com/telhawk-systems/hookrelay/common/logging"
	"github.com/telhawk-systems/hookrelay/common/middleware"
	"github.com/telhawk-systems/hookrelay/relay/pkg/webhook"
)

const userAgent = "relayctl/0.1.0"

// errDeliveryFailed is returned after a failed result has been printed, so the
// process exits non-zero without printing the error twice.
var errDeliveryFailed = errors.New("delivery failed")

// app carries state shared by every command of one invocation.
type app struct {
	cfgFile string
	cfg     *config.Config

	profile          string
	format           string
	webhookURL       string
	relayURL         string
	noRelay          bool
	timeout          time.Duration
	fallbackOnStatus bool
	verbose          bool

	now func() time.Time
}

// NewRootCmd builds the relayctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{now: time.Now}

	root := &cobra.Command{
		Use:   "relayctl",
		Short: "Send chat messages and files to n8n webhooks",
		Long: `relayctl talks to n8n workflow webhooks from the terminal.

Every request is sent directly to the webhook first. When the webhook cannot be
reached, the request is retried once through a hookrelay relay.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.relayctl/config.yaml)")
	flags.StringVar(&a.profile, "profile", "", "profile to use (default: current profile)")
	flags.StringVarP(&a.format, "output", "o", "text", "output format: text, json")
	flags.StringVarP(&a.webhookURL, "webhook-url", "w", "", "n8n webhook URL (overrides the profile)")
	flags.StringVar(&a.relayURL, "relay-url", "", "relay base URL (overrides the profile)")
	flags.BoolVar(&a.noRelay, "no-relay", false, "never fall back to the relay")
	flags.DurationVar(&a.timeout, "timeout", webhook.DefaultTimeout, "timeout for each outbound call")
	flags.BoolVar(&a.fallbackOnStatus, "fallback-on-status", false, "also fall back to the relay when the webhook answers with a non-2xx status")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log transport decisions to stderr")

	root.AddCommand(
		newChatCmd(a),
		newUploadCmd(a),
		newWebhookCmd(a),
		newProfileCmd(a),
		newEventsCmd(a),
	)
	return root
}

func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil && !errors.Is(err, errDeliveryFailed) {
		output.New(root.OutOrStdout(), root.ErrOrStderr()).Error("%v", err)
	}
	return err
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		output.New(cmd.OutOrStdout(), cmd.ErrOrStderr()).Warn("Could not load config: %v", err)
		cfg = config.Default()
	}
	a.cfg = cfg

	if a.format != "text" && a.format != "json" {
		return fmt.Errorf("unknown output format %q (use text or json)", a.format)
	}
	return nil
}

func (a *app) printer(cmd *cobra.Command) *output.Printer {
	return output.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func (a *app) logger(cmd *cobra.Command) *logging.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	return logging.NewWithWriter(cmd.ErrOrStderr(), level, "text")
}

// activeProfile returns the selected profile, or nil when none is configured.
func (a *app) activeProfile() *config.Profile {
	if a.cfg == nil {
		return nil
	}
	p, err := a.cfg.GetProfile(a.profile)
	if err != nil {
		return nil
	}
	return p
}

// target resolves the webhook URL from the flag, then the profile.
func (a *app) target() (webhook.TargetEndpoint, error) {
	url := strings.TrimSpace(a.webhookURL)
	if url == "" {
		if p := a.activeProfile(); p != nil {
			url = p.WebhookURL
		}
	}
	target := webhook.TargetEndpoint{URL: url}
	if err := target.Validate(); err != nil {
		return target, fmt.Errorf("no webhook URL: pass --webhook-url or set one with 'relayctl profile set'")
	}
	return target, nil
}

func (a *app) effectiveTimeout(cmd *cobra.Command) time.Duration {
	if cmd.Flags().Changed("timeout") {
		return a.timeout
	}
	return a.activeProfile().TimeoutOr(a.timeout)
}

// selector assembles the direct-then-relay transport for this invocation.
func (a *app) selector(cmd *cobra.Command) *webhook.Selector {
	timeout := a.effectiveTimeout(cmd)
	profile := a.activeProfile()

	policy := webhook.FallbackOnTransportError
	if a.fallbackOnStatus || (profile != nil && profile.FallbackOnStatus && !cmd.Flags().Changed("fallback-on-status")) {
		policy = webhook.FallbackOnRemoteError
	}

	s := &webhook.Selector{
		Direct: &webhook.DirectDeliverer{
			Forwarder: webhook.NewForwarder(timeout),
			UserAgent: userAgent,
			Now:       a.now,
		},
		Policy: policy,
		Logger: a.logger(cmd),
		Now:    a.now,
	}

	if !a.noRelay {
		relayURL := a.relayURL
		if relayURL == "" && profile != nil {
			relayURL = profile.RelayURL
		}
		if relayURL == "" {
			relayURL = config.DefaultRelayURL
		}
		s.Relay = webhook.NewRelayDeliverer(relayURL, timeout, userAgent)
	}
	return s
}

// deliver sends req and prints the normalized result.
func (a *app) deliver(cmd *cobra.Command, req webhook.OutboundRequest) error {
	target, err := a.target()
	if err != nil {
		return err
	}

	ctx, _ := middleware.NewRequestID(commandContext(cmd))
	result := a.selector(cmd).Deliver(ctx, req, target)
	return a.printResult(cmd, result)
}

func (a *app) printResult(cmd *cobra.Command, res webhook.NormalizedResult) error {
	p := a.printer(cmd)

	if a.format == "json" {
		if err := p.JSON(res); err != nil {
			return err
		}
		if !res.OK {
			return errDeliveryFailed
		}
		return nil
	}

	if res.FellBack {
		p.Warn("Direct call failed (%s); used relay %s", res.DirectError, logging.RedactURL(res.EndpointUsed))
	}
	if res.OK {
		p.Success("Response received via %s", res.Path)
		p.Plain("%s", res.Message)
		return nil
	}

	p.Error("%s", res.ErrorDetail)
	if hints := webhook.DescribeFailure(res); len(hints) > 0 {
		p.Warn("Common causes:")
		for _, hint := range hints {
			p.Warn("  - %s", hint)
		}
	}
	return errDeliveryFailed
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
