package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/avalia-ganha/avalia/internal/daemon"
	"github.com/avalia-ganha/avalia/internal/domain"
)

func init() {
	rootCmd.AddCommand(tasksCmd)
}

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"ls"},
	Short:   "List the task catalog",
	RunE:    runTasks,
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return printTasks(os.Stdout, cfg)
}

func printTasks(out io.Writer, cfg daemon.Config) error {
	tasks, err := cfg.Catalog()
	if err != nil {
		return err
	}
	settings, err := cfg.FunnelSettings()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tPLATFORM\tREWARD\tBONUS\tTITLE")
	for _, t := range tasks {
		reward := domain.FormatBRL(t.BaseReward)
		if t.Kind == domain.KindGame {
			reward = "score:" + t.Game
		}
		bonus := "-"
		if b, ok := settings.Bonuses[t.ID]; ok {
			bonus = domain.FormatBRL(b)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			strconv.Itoa(t.ID), t.Kind, t.Platform, reward, bonus, t.Title)
	}
	fmt.Fprintf(w, "\nCeiling: %s\n", domain.FormatBRL(settings.Ceiling))
	return w.Flush()
}
