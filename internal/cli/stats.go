package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/avalia-ganha/avalia/internal/daemon"
	"github.com/avalia-ganha/avalia/internal/domain"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show totals recorded by the event journal",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	j, err := daemon.OpenJournal(cfg.Storage)
	if err != nil {
		return err
	}
	defer j.Close()

	r, ok := j.(domain.Reporter)
	if !ok {
		fmt.Printf("Storage driver %q keeps no totals.\n", cfg.Storage.Driver)
		return nil
	}
	sum, err := r.Summary(context.Background())
	if err != nil {
		return err
	}
	return printSummary(os.Stdout, sum)
}

func printSummary(out io.Writer, sum domain.JournalSummary) error {
	fmt.Fprintf(out, "Sessions:  %d\n", sum.Sessions)
	fmt.Fprintf(out, "Finished:  %d\n", sum.Finished)
	fmt.Fprintf(out, "Open:      %d\n", sum.Open)
	if sum.Sessions > 0 {
		fmt.Fprintf(out, "Conversion: %.1f%%\n", float64(sum.Finished)/float64(sum.Sessions)*100)
	}
	if len(sum.Events) == 0 {
		return nil
	}

	types := make([]string, 0, len(sum.Events))
	for t := range sum.Events {
		types = append(types, string(t))
	}
	sort.Strings(types)

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tCOUNT")
	for _, t := range types {
		fmt.Fprintf(w, "%s\t%d\n", t, sum.Events[domain.EventType(t)])
	}
	return w.Flush()
}
