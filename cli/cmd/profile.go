package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/hookrelay/cli/internal/config"
	"github.com/telhawk-systems/hookrelay/cli/pkg/output"
	"github.com/telhawk-systems/hookrelay/common/logging"
)

func newProfileCmd(a *app) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage relay and webhook profiles",
	}

	var (
		relayURL   string
		webhookURL string
		timeout    time.Duration
		onStatus   bool
	)
	setCmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Create or update a profile and make it current",
		Example: `  relayctl profile set prod --relay https://relay.example.com \
      --webhook https://n8n.example.com/webhook/chat`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			profile := &config.Profile{}
			if existing, ok := a.cfg.Profiles[name]; ok {
				*profile = *existing
			}
			if cmd.Flags().Changed("relay") {
				profile.RelayURL = relayURL
			}
			if cmd.Flags().Changed("webhook") {
				profile.WebhookURL = webhookURL
			}
			if cmd.Flags().Changed("profile-timeout") {
				profile.Timeout = timeout.String()
			}
			if cmd.Flags().Changed("fallback-on-status") {
				profile.FallbackOnStatus = onStatus
			}
			if profile.RelayURL == "" {
				profile.RelayURL = config.DefaultRelayURL
			}

			if err := a.cfg.SaveProfile(name, profile); err != nil {
				return fmt.Errorf("save profile: %w", err)
			}
			a.printer(cmd).Success("Profile '%s' saved to %s", name, a.cfg.Path())
			return nil
		},
	}
	setCmd.Flags().StringVar(&relayURL, "relay", "", "relay base URL")
	setCmd.Flags().StringVar(&webhookURL, "webhook", "", "default n8n webhook URL")
	setCmd.Flags().DurationVar(&timeout, "profile-timeout", 0, "outbound call timeout stored in the profile")
	setCmd.Flags().BoolVar(&onStatus, "fallback-on-status", false, "fall back to the relay on non-2xx statuses")

	showCmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Show a profile (default: current)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := a.profile
			if len(args) == 1 {
				name = args[0]
			}
			if name == "" {
				name = a.cfg.CurrentProfile
			}
			profile, err := a.cfg.GetProfile(name)
			if err != nil {
				return err
			}

			p := a.printer(cmd)
			if a.format == "json" {
				return p.JSON(map[string]any{
					"name":               name,
					"current":            name == a.cfg.CurrentProfile,
					"relay_url":          profile.RelayURL,
					"webhook_url":        profile.WebhookURL,
					"timeout":            profile.TimeoutOr(a.timeout).String(),
					"fallback_on_status": profile.FallbackOnStatus,
				})
			}
			p.Info("Profile: %s", name)
			p.Plain("  relay:              %s", profile.RelayURL)
			p.Plain("  webhook:            %s", logging.RedactURL(profile.WebhookURL))
			p.Plain("  timeout:            %s", profile.TimeoutOr(a.timeout))
			p.Plain("  fallback on status: %t", profile.FallbackOnStatus)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := a.cfg.ProfileNames()
			if len(names) == 0 {
				a.printer(cmd).Info("No profiles configured. Create one with 'relayctl profile set'.")
				return nil
			}
			table := output.NewTable([]string{"", "NAME", "RELAY", "WEBHOOK"})
			for _, name := range names {
				marker := ""
				if name == a.cfg.CurrentProfile {
					marker = "*"
				}
				p := a.cfg.Profiles[name]
				table.AddRow([]string{marker, name, p.RelayURL, logging.RedactURL(p.WebhookURL)})
			}
			table.Render(cmd.OutOrStdout())
			return nil
		},
	}

	useCmd := &cobra.Command{
		Use:   "use <name>",
		Short: "Make a profile current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.UseProfile(args[0]); err != nil {
				return err
			}
			a.printer(cmd).Success("Now using profile '%s'", args[0])
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RemoveProfile(args[0]); err != nil {
				return err
			}
			a.printer(cmd).Success("Profile '%s' removed", args[0])
			return nil
		},
	}

	profileCmd.AddCommand(setCmd, showCmd, listCmd, useCmd, removeCmd)
	return profileCmd
}
