package main

import (
	"errors"
	"fmt"

	"github.com/hupe1980/miniclaw"
	"github.com/hupe1980/miniclaw/internal/config"
	"github.com/hupe1980/miniclaw/internal/console"
	"github.com/hupe1980/miniclaw/logging"
	"github.com/spf13/cobra"
)

func chatCmd(configPath *string) *cobra.Command {
	var (
		message   string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent interactively or send a one-shot message",
		Long: `Chat with the agent in a REPL, or send a single message with -m.

Examples:
  miniclaw chat                        # Interactive REPL
  miniclaw chat -m "What can you do?"  # One-shot message
  miniclaw chat -s cli-1a2b3c4d        # Name the chat session`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				if errors.Is(err, config.ErrMissingAPIKey) {
					return fmt.Errorf("%w\nplease set it in your environment or config file", err)
				}
				return err
			}

			logger := logging.New(cfg.Logging())

			m, err := newModel(cfg)
			if err != nil {
				return err
			}

			a, err := miniclaw.New(m, func(o *miniclaw.Options) {
				o.Config = cfg.Agent()
				o.Logger = logger
			})
			if err != nil {
				return err
			}

			c := console.New(a, func(o *console.Options) {
				o.In = cmd.InOrStdin()
				o.Out = cmd.OutOrStdout()
				o.Logger = logger
				o.ChatID = sessionID
			})

			if message != "" {
				if !c.Send(cmd.Context(), message) {
					return errors.New("message failed")
				}
				return nil
			}

			return c.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive mode)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "chat session id (default: auto-generated)")

	return cmd
}
