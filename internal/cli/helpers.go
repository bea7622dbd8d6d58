package cli

import (
	"fmt"
	"strings"

	"github.com/avalia-ganha/avalia/internal/daemon"
	"github.com/avalia-ganha/avalia/internal/domain"
)

// loadConfig honours --config, falling back to $AVALIA_HOME/config.toml.
func loadConfig() (daemon.Config, error) {
	if configPath != "" {
		return daemon.LoadConfigFile(configPath)
	}
	return daemon.LoadConfig()
}

// describeEvent renders one funnel event as a log line.
func describeEvent(e domain.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s", e.Type)
	if e.TaskID > 0 {
		fmt.Fprintf(&b, " task=%d", e.TaskID)
	}
	if !e.Amount.IsZero() {
		fmt.Fprintf(&b, " amount=%s", domain.FormatBRL(e.Amount))
	}
	fmt.Fprintf(&b, " balance=%s", domain.FormatBRL(e.Balance))
	if e.Detail != "" {
		fmt.Fprintf(&b, " (%s)", e.Detail)
	}
	return b.String()
}
