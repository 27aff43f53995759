package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhuss/copilot-bridge/pkg/config"
	"github.com/rhuss/copilot-bridge/pkg/upstream"
)

func newCheckTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-token",
		Short: "Verify the upstream credential against the info endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return checkToken(ctx, cfg, cmd.OutOrStdout())
		},
	}
}

// checkToken prints the info endpoint's answer when the credential is
// accepted and the error body otherwise.
func checkToken(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if !cfg.HasCredential() {
		return errors.New("no upstream credential configured")
	}

	client := upstream.NewClient(cfg.Upstream)
	defer client.Close()

	info, err := client.CheckToken(ctx)
	if err != nil {
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			fmt.Fprintf(out, "credential rejected (HTTP %d):\n%s\n", statusErr.StatusCode, statusErr.Body)
		}
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, info, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(info)
	}
	fmt.Fprintf(out, "credential valid:\n%s\n", pretty.String())
	return nil
}
