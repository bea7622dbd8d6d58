package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/avalia-ganha/avalia/internal/domain"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// Funnel progress for simulated runs.
// Shows: [=============>................]  40% | R$ 78.00 | 2/5 tasks

const barWidth = 30 // Characters for the progress bar

type progressBar struct {
	w io.Writer
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w}
}

func (p *progressBar) render(snap domain.Snapshot) {
	pct := snap.ProgressPct()
	status := fmt.Sprintf("%d/%d tasks", snap.CurrentIndex, len(snap.Tasks))
	if snap.Finished {
		status = "finished"
	}
	fmt.Fprintf(p.w, "  [%s] %3.0f%% | %s | %s\n",
		renderBar(pct), pct, domain.FormatBRL(snap.Balance), status)
}

// renderBar builds [=======>............] for pct in 0..100.
func renderBar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	switch {
	case filled == barWidth:
		return strings.Repeat("=", filled)
	case filled > 0:
		return strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty)
	default:
		return strings.Repeat(".", barWidth)
	}
}
