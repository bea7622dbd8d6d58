package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/avalia-ganha/avalia/internal/app/games"
	"github.com/avalia-ganha/avalia/internal/app/offer"
	"github.com/avalia-ganha/avalia/internal/app/session"
	"github.com/avalia-ganha/avalia/internal/daemon"
	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
)

func init() {
	simulateCmd.Flags().Int64Var(&simOpts.Seed, "seed", 1, "Seed for game randomness")
	simulateCmd.Flags().StringVar(&simOpts.Plan, "plan", offer.PlanVIP, "Plan to choose at the end: basic, vip or premium")
	simulateCmd.Flags().BoolVar(&simOpts.RejectFirst, "reject-first", false, "Reject each video once before approving it")
	simulateCmd.Flags().BoolVar(&simOpts.Quiet, "quiet", false, "Hide individual funnel events")
	simulateCmd.Flags().StringVar(&simRemote, "remote", "", "Drive a running server at this base URL instead of an in-process funnel")
	simulateCmd.Flags().Float64Var(&simOpts.Score, "score", 1000, "Game score reported in --remote mode")
	simulateCmd.Flags().DurationVar(&simOpts.Poll, "poll", 250*time.Millisecond, "Snapshot poll interval in --remote mode")
	rootCmd.AddCommand(simulateCmd)
}

type simOptions struct {
	Seed        int64
	Plan        string
	RejectFirst bool
	Quiet       bool
	Score       float64
	Poll        time.Duration
}

var (
	simOpts   simOptions
	simRemote string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play the whole funnel end to end",
	Long: `Play every task of the funnel with a scripted visitor and pick a plan.

By default the funnel runs in-process on simulated time, so a full run takes
milliseconds. With --remote the same walk is made against a running server.`,
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simRemote != "" {
		return simulateRemote(cmd.Context(), os.Stdout, simRemote, simOpts)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, err = simulateLocal(os.Stdout, cfg, simOpts)
	return err
}

// ─── In-process Run ─────────────────────────────────────────────────────────

const gameLimit = 10 * time.Minute

func simulateLocal(w io.Writer, cfg daemon.Config, opts simOptions) (offer.Result, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return offer.Result{}, err
	}
	settings, err := cfg.FunnelSettings()
	if err != nil {
		return offer.Result{}, err
	}
	handoff, err := cfg.Handoff()
	if err != nil {
		return offer.Result{}, err
	}

	fc := clock.NewFake(time.Now())
	seed := opts.Seed
	mgr, err := session.NewManager(cfg.SessionLimits(), catalog, settings, session.Deps{
		Scheduler: fc,
		Handoff:   handoff,
		Seed:      func() int64 { seed++; return seed },
	})
	if err != nil {
		return offer.Result{}, err
	}
	ctx := context.Background()
	defer mgr.Shutdown(ctx)

	s, err := mgr.Create(ctx)
	if err != nil {
		return offer.Result{}, err
	}
	events := s.Engine.Subscribe()
	bar := newProgressBar(w)
	settle := settings.RewardDisplay + settings.BonusDelay

	fmt.Fprintf(w, "Session %s (%d tasks)\n", s.ID, len(catalog))
	for i, t := range catalog {
		fmt.Fprintf(w, "\nTask %d/%d  %s [%s]\n", i+1, len(catalog), t.Title, t.Kind)

		award, err := playTask(w, s, t, fc, opts)
		if err != nil {
			return offer.Result{}, fmt.Errorf("task %d: %w", t.ID, err)
		}
		fmt.Fprintf(w, "  earned %s (applied %s)\n",
			domain.FormatBRL(award.Nominal), domain.FormatBRL(award.Applied))

		fc.Advance(settle)
		drainEvents(w, events, opts.Quiet)
		bar.render(s.Engine.Snapshot())
	}

	if !s.Engine.Finished() {
		return offer.Result{}, domain.ErrFunnelNotFinished
	}
	res, err := s.Offer(opts.Plan)
	if err != nil {
		return offer.Result{}, err
	}
	drainEvents(w, events, opts.Quiet)
	fmt.Fprintf(w, "\nOffer %s: %s\nBalance %s, redirect after %dms\n",
		res.Plan, res.URL, res.BalanceText, res.RedirectAfterMS)
	return res, nil
}

func playTask(w io.Writer, s *session.Session, t domain.Task, fc *clock.Fake, opts simOptions) (domain.Award, error) {
	switch t.Kind {
	case domain.KindVideo:
		if err := s.Watch(t.ID); err != nil {
			return domain.Award{}, err
		}
		if opts.RejectFirst {
			award, err := s.Evaluate(t.ID, false)
			if err != nil || !award.Rejected {
				return award, err
			}
			fmt.Fprintln(w, "  rejected, watching again")
			if err := s.Watch(t.ID); err != nil {
				return domain.Award{}, err
			}
		}
		return s.Evaluate(t.ID, true)

	case domain.KindApp:
		a, err := s.App(t.ID)
		if err != nil {
			return domain.Award{}, err
		}
		if err := s.AppAction(t.ID, "open", ""); err != nil {
			return domain.Award{}, err
		}
		fc.Advance(time.Second)
		fmt.Fprintf(w, "  %s walkthrough at %d%%\n", t.App, a.State().Progress)
		return s.Evaluate(t.ID, true)

	case domain.KindGame:
		if err := s.GameAction(t.ID, "start", games.Args{}); err != nil {
			return domain.Award{}, err
		}
		g, err := s.Game(t.ID)
		if err != nil {
			return domain.Award{}, err
		}
		if err := games.Autoplay(g, fc.Advance, gameLimit); err != nil {
			return domain.Award{}, err
		}
		award, err := s.ClaimGame(t.ID)
		if errors.Is(err, domain.ErrGameNotOver) {
			// Games hold their final screen briefly before the score is claimable.
			fc.Advance(5 * time.Second)
			award, err = s.ClaimGame(t.ID)
		}
		return award, err
	}
	return domain.Award{}, fmt.Errorf("%w: %s", domain.ErrWrongTaskKind, t.Kind)
}

func drainEvents(w io.Writer, ch chan domain.Event, quiet bool) {
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			if !quiet {
				fmt.Fprintf(w, "  · %s\n", describeEvent(e))
			}
		default:
			return
		}
	}
}
