// Package offer hands a finished funnel over to the subscription checkout.
// It maps the chosen plan to a configured payment URL and returns the final
// balance alongside it.
package offer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/metrics"
)

// Plan identifiers accepted by Choose.
const (
	PlanBasic   = "basic"
	PlanMedium  = "medium"
	PlanVIP     = "vip" // alias for medium
	PlanPremium = "premium"
)

// Environments with their own URL sets.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DefaultRedirectDelay is how long the page waits before following the URL.
const DefaultRedirectDelay = 500 * time.Millisecond

// URLs is one environment's set of checkout links.
type URLs struct {
	Basic   string `toml:"basic_plan_url" json:"basic_plan_url"`
	VIP     string `toml:"vip_plan_url" json:"vip_plan_url"`
	Premium string `toml:"premium_modal_url" json:"premium_modal_url"`
}

// DefaultURLs returns the stock checkout links for both environments.
func DefaultURLs() map[string]URLs {
	u := URLs{
		Basic:   "https://go.tribopay.com.br/rzn24gmwkp",
		VIP:     "https://go.tribopay.com.br/ypblr",
		Premium: "https://go.tribopay.com.br/vdsjq",
	}
	return map[string]URLs{
		EnvDevelopment: u,
		EnvProduction:  u,
	}
}

// Result is what the offer page needs to redirect the user.
type Result struct {
	Plan            string          `json:"plan"`
	URL             string          `json:"url"`
	Balance         decimal.Decimal `json:"balance"`
	BalanceText     string          `json:"balance_text"`
	RedirectAfterMS int64           `json:"redirect_after_ms"`
}

// Handoff resolves plans against one environment's URLs.
type Handoff struct {
	env   string
	urls  URLs
	delay time.Duration
}

// New selects the URL set for env. An empty env means production.
func New(env string, sets map[string]URLs, delay time.Duration) (*Handoff, error) {
	if env == "" {
		env = EnvProduction
	}
	urls, ok := sets[env]
	if !ok {
		return nil, fmt.Errorf("unknown offer environment %q", env)
	}
	if urls.Basic == "" || urls.VIP == "" || urls.Premium == "" {
		return nil, fmt.Errorf("offer environment %q is missing plan urls", env)
	}
	if delay < 0 {
		delay = 0
	}
	return &Handoff{env: env, urls: urls, delay: delay}, nil
}

// Environment returns the selected environment name.
func (h *Handoff) Environment() string { return h.env }

// URLs returns the active URL set.
func (h *Handoff) URLs() URLs { return h.urls }

// URL maps a plan to its checkout link.
func (h *Handoff) URL(plan string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case PlanBasic:
		return h.urls.Basic, nil
	case PlanMedium, PlanVIP:
		return h.urls.VIP, nil
	case PlanPremium:
		return h.urls.Premium, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownPlan, plan)
	}
}

// Choose resolves the plan for a finished funnel.
func (h *Handoff) Choose(snap domain.Snapshot, plan string) (Result, error) {
	if !snap.Finished {
		return Result{}, domain.ErrFunnelNotFinished
	}
	url, err := h.URL(plan)
	if err != nil {
		return Result{}, err
	}
	metrics.OffersChosen.WithLabelValues(strings.ToLower(strings.TrimSpace(plan))).Inc()
	return Result{
		Plan:            plan,
		URL:             url,
		Balance:         snap.Balance,
		BalanceText:     domain.FormatBRL(snap.Balance),
		RedirectAfterMS: h.delay.Milliseconds(),
	}, nil
}
