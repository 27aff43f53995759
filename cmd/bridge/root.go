package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bridge",
		Short: "OpenAI-compatible proxy for the Copilot chat API",
		Long: `copilot-bridge accepts OpenAI-style chat completion requests, forwards
them to the Copilot chat API and relays the answer, streamed or not, in the
format OpenAI clients expect.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("could not load .env file", "error", err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: discovered)")

	root.AddCommand(newServeCmd(), newCheckTokenCmd(), newInitConfigCmd())
	return root
}
