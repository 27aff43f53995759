// Command bridge runs copilot-bridge, an OpenAI-compatible chat endpoint
// that forwards requests to the Copilot chat API.
//
// Usage:
//
//	bridge serve [--config path]   start the HTTP server
//	bridge check-token             verify the upstream credential
//	bridge init-config             write the default configuration file
//
// A .env file in the working directory is loaded before the configuration,
// so BRIDGE_* overrides can live there.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rhuss/copilot-bridge/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, config.ErrDefaultWritten) {
			fmt.Fprintln(os.Stderr, "Add the upstream credential to the configuration file and restart.")
		}
		os.Exit(1)
	}
}
