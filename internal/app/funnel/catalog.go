package funnel

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/avalia-ganha/avalia/internal/app/reward"
	"github.com/avalia-ganha/avalia/internal/domain"
)

// DefaultCatalog returns the standard five-step funnel.
func DefaultCatalog() []domain.Task {
	return []domain.Task{
		{
			ID:          1,
			Kind:        domain.KindVideo,
			Title:       "💰 GANHE R$ 28 Assistindo Receita de Bolo",
			Description: "Assista esta receita incrível de bolo de chocolate e ganhe dinheiro agora!",
			Platform:    "YouTube",
			BaseReward:  decimal.NewFromInt(28),
			VideoID:     "jadYjKjPonE",
			VideoTitle:  "BOLO DE CHOCOLATE RÁPIDO E FÁCIL | Bolo de Nescau | O Mais Fácil do Mundo",
		},
		{
			ID:          2,
			Kind:        domain.KindApp,
			Title:       "🚀 TESTE App e GANHE R$ 35 Agora",
			Description: "Teste a interface de um novo aplicativo de delivery e dê sua opinião",
			Platform:    "FoodExpress",
			BaseReward:  decimal.NewFromInt(35),
			App:         "delivery",
		},
		{
			ID:          3,
			Kind:        domain.KindVideo,
			Title:       "⚡ R$ 32 por 5 Minutos de Vídeo",
			Description: "Assista um vídeo com 5 dicas práticas de organização e avalie o conteúdo",
			Platform:    "YouTube",
			BaseReward:  decimal.NewFromInt(32),
			VideoID:     "6CMqQ8Iz-_Q",
			VideoTitle:  "5 DICAS DE ORGANIZAÇÃO QUE VÃO MUDAR SUA VIDA",
		},
		{
			ID:          4,
			Kind:        domain.KindApp,
			Title:       "💪 App Fitness = R$ 42 Garantidos",
			Description: "Explore um aplicativo de exercícios e avalie a experiência do usuário",
			Platform:    "FitLife Pro",
			BaseReward:  decimal.NewFromInt(42),
			App:         "fitness",
		},
		{
			ID:          5,
			Kind:        domain.KindGame,
			Title:       "🐅 JOGO DO TIGRINHO - Desbloqueie seu Bônus!",
			Description: "Jogue o famoso Tigrinho e desbloqueie bônus exclusivos de até R$ 200!",
			Platform:    "GameHub",
			BaseReward:  decimal.Zero,
			Game:        reward.GameTiger,
		},
	}
}

// catalogFile is the YAML layout of a catalog override.
type catalogFile struct {
	Tasks []catalogEntry `yaml:"tasks"`
}

type catalogEntry struct {
	ID          int     `yaml:"id"`
	Kind        string  `yaml:"kind"`
	Title       string  `yaml:"title"`
	Description string  `yaml:"description"`
	Platform    string  `yaml:"platform"`
	BaseReward  float64 `yaml:"base_reward"`
	VideoID     string  `yaml:"video_id"`
	VideoTitle  string  `yaml:"video_title"`
	App         string  `yaml:"app"`
	Game        string  `yaml:"game"`
}

// LoadCatalog reads a YAML catalog file. An empty path yields DefaultCatalog.
func LoadCatalog(path string) ([]domain.Task, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates YAML catalog data.
func ParseCatalog(data []byte) ([]domain.Task, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	tasks := make([]domain.Task, len(f.Tasks))
	for i, e := range f.Tasks {
		tasks[i] = domain.Task{
			ID:          e.ID,
			Kind:        domain.TaskKind(e.Kind),
			Title:       e.Title,
			Description: e.Description,
			Platform:    e.Platform,
			BaseReward:  decimal.NewFromFloat(e.BaseReward).Round(2),
			VideoID:     e.VideoID,
			VideoTitle:  e.VideoTitle,
			App:         e.App,
			Game:        e.Game,
		}
	}
	if err := ValidateCatalog(tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ValidateCatalog checks ids are 1..N in order and each task is well formed.
func ValidateCatalog(tasks []domain.Task) error {
	if len(tasks) == 0 {
		return domain.ErrEmptyCatalog
	}
	for i, t := range tasks {
		if t.ID != i+1 {
			return fmt.Errorf("%w: position %d has id %d", domain.ErrCatalogOrder, i, t.ID)
		}
		if !t.Kind.Valid() {
			return fmt.Errorf("%w: task %d has kind %q", domain.ErrInvalidTaskKind, t.ID, t.Kind)
		}
		if t.BaseReward.IsNegative() {
			return fmt.Errorf("%w: task %d", domain.ErrNegativeBaseReward, t.ID)
		}
		if t.Kind == domain.KindGame {
			if _, err := reward.ByName(t.Game); err != nil {
				return fmt.Errorf("task %d: %w", t.ID, err)
			}
		}
		if t.Kind == domain.KindApp && t.App == "" {
			return fmt.Errorf("%w: task %d has no app", domain.ErrUnknownApp, t.ID)
		}
	}
	return nil
}
