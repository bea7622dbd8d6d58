package reward

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/avalia-ganha/avalia/internal/domain"
)

func TestFormulas(t *testing.T) {
	tests := []struct {
		name    string
		formula Formula
		score   float64
		want    int64
	}{
		{"flappy zero hits floor", Flappy, 0, 30},
		{"flappy four still floor", Flappy, 4, 30},
		{"flappy ten", Flappy, 10, 50},
		{"tiger zero winnings", Tiger, 0, 50},
		{"tiger 400 winnings", Tiger, 400, 50},
		{"tiger 1000 winnings", Tiger, 1000, 125},
		{"tiger truncates", Tiger, 807, 100},
		{"crash 2.57x", Crash, 2.57, 30},
		{"crash 4.5x", Crash, 4.5, 45},
		{"builder 40 points", Builder, 40, 80},
		{"slot payout", Slot, 55, 55},
		{"negative score", Flappy, -3, 30},
		{"infinite score", Tiger, math.Inf(1), 50},
		{"NaN score", Flappy, math.NaN(), 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.formula.Reward(tt.score)
			if !got.Equal(decimal.NewFromInt(tt.want)) {
				t.Errorf("Reward(%v) = %s, want %d", tt.score, got, tt.want)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range Names() {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%q) error: %v", name, err)
		}
	}

	_, err := ByName("roulette")
	if !errors.Is(err, domain.ErrUnknownGame) {
		t.Errorf("ByName(roulette) err = %v, want ErrUnknownGame", err)
	}
}
