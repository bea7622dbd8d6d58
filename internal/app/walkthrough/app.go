package walkthrough

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avalia-ganha/avalia/internal/domain"
	"github.com/avalia-ganha/avalia/internal/infra/clock"
)

// App names. These match the catalog's `app` field.
const (
	AppDelivery = "delivery"
	AppFitness  = "fitness"
)

const (
	progressTick = 100 * time.Millisecond
	progressStep = 2
	progressMax  = 100
)

// Option is something the user can tap on the current screen.
type Option struct {
	Name   string           `json:"name"`
	Emoji  string           `json:"emoji"`
	Detail string           `json:"detail,omitempty"`
	Price  *decimal.Decimal `json:"price,omitempty"`
}

// AppState is the JSON view of an app walkthrough.
type AppState struct {
	App         string          `json:"app"`
	Title       string          `json:"title"`
	Screen      string          `json:"screen"`
	ScreenIndex int             `json:"screen_index"`
	Screens     []string        `json:"screens"`
	Selected    string          `json:"selected,omitempty"`
	Details     bool            `json:"details,omitempty"`
	Options     []Option        `json:"options,omitempty"`
	Cart        []Option        `json:"cart,omitempty"`
	Total       decimal.Decimal `json:"total"`
	Progress    int             `json:"progress"`
}

// App is a clickable mock of a delivery or fitness app. A "testing" meter
// fills while the user explores; it is cosmetic and never gates evaluation.
type App struct {
	mu       sync.Mutex
	def      *appDef
	loop     *clock.Loop
	screen   int
	selected string
	details  bool
	cart     []Option
	progress int
}

// NewApp creates the named walkthrough.
func NewApp(name string, sched clock.Scheduler) (*App, error) {
	def, ok := appDefs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownApp, name)
	}
	if sched == nil {
		sched = clock.Real{}
	}
	return &App{def: def, loop: clock.NewLoop(sched)}, nil
}

// Open starts the progress meter from zero.
func (a *App) Open() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progress = 0
	a.loop.Start(progressTick, a.tick)
}

func (a *App) tick() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.progress >= progressMax {
		return false
	}
	a.progress = min(a.progress+progressStep, progressMax)
	return a.progress < progressMax
}

// Stop cancels the progress meter.
func (a *App) Stop() {
	a.loop.Stop()
}

// Act applies a walkthrough action: "next", "back", "select" (item) or
// "start" (fitness only, begins the selected workout).
func (a *App) Act(action, item string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch action {
	case "next":
		if a.screen >= len(a.def.screens)-1 {
			return fmt.Errorf("%w: already on the last screen", domain.ErrActionUnavailable)
		}
		a.screen++
		a.details = false
		return nil
	case "back":
		if a.details {
			a.details = false
			return nil
		}
		if a.screen == 0 {
			return fmt.Errorf("%w: already on the first screen", domain.ErrActionUnavailable)
		}
		a.screen--
		return nil
	case "select":
		return a.def.selectItem(a, item)
	case "start":
		if a.def.start == nil {
			return unknownAppAction(a.def.name, action)
		}
		return a.def.start(a)
	default:
		return unknownAppAction(a.def.name, action)
	}
}

func (a *App) State() AppState {
	a.mu.Lock()
	defer a.mu.Unlock()

	cart := make([]Option, len(a.cart))
	copy(cart, a.cart)
	total := decimal.Zero
	for _, o := range cart {
		if o.Price != nil {
			total = total.Add(*o.Price)
		}
	}
	if len(cart) > 0 {
		total = total.Add(a.def.fee)
	}

	return AppState{
		App:         a.def.name,
		Title:       a.def.title,
		Screen:      a.def.screens[a.screen],
		ScreenIndex: a.screen,
		Screens:     a.def.screens,
		Selected:    a.selected,
		Details:     a.details,
		Options:     a.def.options(a),
		Cart:        cart,
		Total:       total,
		Progress:    a.progress,
	}
}

func unknownAppAction(app, action string) error {
	return fmt.Errorf("%w: %s has no action %q", domain.ErrUnknownAction, app, action)
}

func findOption(opts []Option, name string) (Option, bool) {
	for _, o := range opts {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// ─── App Definitions ────────────────────────────────────────────────────────

type appDef struct {
	name       string
	title      string
	screens    []string
	fee        decimal.Decimal
	options    func(a *App) []Option
	selectItem func(a *App, item string) error
	start      func(a *App) error
}

var appDefs = map[string]*appDef{
	AppDelivery: {
		name:    AppDelivery,
		title:   "FoodExpress",
		screens: []string{"home", "restaurant", "cart", "checkout"},
		fee:     decimal.RequireFromString("3.99"),
		options: func(a *App) []Option {
			switch a.screen {
			case 0:
				return restaurants
			case 1:
				return menus[a.selected]
			}
			return nil
		},
		selectItem: func(a *App, item string) error {
			switch a.screen {
			case 0:
				if _, ok := findOption(restaurants, item); !ok {
					return fmt.Errorf("%w: no restaurant %q", domain.ErrActionUnavailable, item)
				}
				a.selected = item
				a.cart = nil
				a.screen = 1
				return nil
			case 1:
				o, ok := findOption(menus[a.selected], item)
				if !ok {
					return fmt.Errorf("%w: %q is not on the menu", domain.ErrActionUnavailable, item)
				}
				a.cart = append(a.cart, o)
				a.screen = 2
				return nil
			}
			return fmt.Errorf("%w: nothing to select on %s", domain.ErrActionUnavailable, a.def.screens[a.screen])
		},
	},
	AppFitness: {
		name:    AppFitness,
		title:   "FitLife Pro",
		screens: []string{"dashboard", "workouts", "exercise", "progress"},
		options: func(a *App) []Option {
			switch a.screen {
			case 0, 1:
				return workouts
			case 2:
				return exercises[a.selected]
			}
			return nil
		},
		selectItem: func(a *App, item string) error {
			if a.screen > 1 {
				return fmt.Errorf("%w: nothing to select on %s", domain.ErrActionUnavailable, a.def.screens[a.screen])
			}
			if _, ok := findOption(workouts, item); !ok {
				return fmt.Errorf("%w: no workout %q", domain.ErrActionUnavailable, item)
			}
			a.selected = item
			a.screen = 1
			a.details = true
			return nil
		},
		start: func(a *App) error {
			if a.screen != 1 || a.selected == "" {
				return fmt.Errorf("%w: select a workout first", domain.ErrActionUnavailable)
			}
			a.details = false
			a.screen = 2
			return nil
		},
	},
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

var restaurants = []Option{
	{Name: "Burger King", Emoji: "🍔", Detail: "Lanches • 25-35 min • 4.5"},
	{Name: "Pizza Hut", Emoji: "🍕", Detail: "Pizza • 30-40 min • 4.7"},
	{Name: "McDonald's", Emoji: "🍟", Detail: "Lanches • 20-30 min • 4.3"},
	{Name: "Subway", Emoji: "🥪", Detail: "Sanduíches • 15-25 min • 4.6"},
}

var menus = map[string][]Option{
	"Burger King": {
		{Name: "Big King", Emoji: "🍔", Detail: "Hambúrguer duplo com queijo", Price: price("18.90")},
		{Name: "Whopper", Emoji: "🍔", Detail: "O clássico da casa", Price: price("22.50")},
		{Name: "Batata Frita", Emoji: "🍟", Detail: "Porção média crocante", Price: price("8.90")},
		{Name: "Refrigerante", Emoji: "🥤", Detail: "Coca-Cola 350ml", Price: price("6.50")},
	},
	"Pizza Hut": {
		{Name: "Pizza Pepperoni", Emoji: "🍕", Detail: "Pepperoni e queijo", Price: price("39.90")},
		{Name: "Pizza Margherita", Emoji: "🍕", Detail: "Molho, queijo e manjericão", Price: price("35.50")},
		{Name: "Pizza Suprema", Emoji: "🍕", Detail: "Carnes e vegetais", Price: price("45.90")},
		{Name: "Refrigerante 2L", Emoji: "🥤", Detail: "Coca-Cola, Pepsi ou Guaraná", Price: price("12.50")},
		{Name: "Breadsticks", Emoji: "🥖", Detail: "Palitos de pão com molho", Price: price("15.90")},
	},
	"McDonald's": {
		{Name: "Big Mac", Emoji: "🍔", Detail: "O sanduíche mais famoso", Price: price("20.90")},
		{Name: "McChicken", Emoji: "🍔", Detail: "Frango empanado", Price: price("18.50")},
		{Name: "Batata Frita", Emoji: "🍟", Detail: "Porção média", Price: price("9.90")},
		{Name: "Sundae", Emoji: "🍦", Detail: "Sorvete com calda", Price: price("8.50")},
	},
	"Subway": {
		{Name: "Sub 15cm Frango", Emoji: "🥪", Detail: "Frango desfiado", Price: price("19.90")},
		{Name: "Sub 15cm Carne", Emoji: "🥪", Detail: "Carne bovina", Price: price("21.50")},
		{Name: "Cookie", Emoji: "🍪", Detail: "Chocolate ou baunilha", Price: price("5.90")},
		{Name: "Refrigerante", Emoji: "🥤", Detail: "Lata 350ml", Price: price("6.50")},
	},
}

var workouts = []Option{
	{Name: "Treino de Peito", Emoji: "💪", Detail: "45 min • 8 exercícios • Intermediário"},
	{Name: "Cardio HIIT", Emoji: "🏃", Detail: "20 min • 6 exercícios • Avançado"},
	{Name: "Yoga Matinal", Emoji: "🧘", Detail: "30 min • 12 exercícios • Iniciante"},
	{Name: "Treino de Pernas", Emoji: "🦵", Detail: "50 min • 10 exercícios • Intermediário"},
}

var exercises = map[string][]Option{
	"Treino de Peito": {
		{Name: "Supino Reto", Emoji: "🏋️", Detail: "3x12 • descanso 60s"},
		{Name: "Flexão de Braço", Emoji: "💪", Detail: "3x15 • descanso 45s"},
		{Name: "Crucifixo", Emoji: "🤸", Detail: "3x10 • descanso 60s"},
		{Name: "Mergulho", Emoji: "🏊", Detail: "3x12 • descanso 45s"},
	},
	"Cardio HIIT": {
		{Name: "Burpees", Emoji: "🏃", Detail: "4x30s • descanso 15s"},
		{Name: "Mountain Climbers", Emoji: "🧗", Detail: "4x30s • descanso 15s"},
		{Name: "Jumping Jacks", Emoji: "🤸", Detail: "4x30s • descanso 15s"},
		{Name: "High Knees", Emoji: "🏃", Detail: "4x30s • descanso 15s"},
	},
	"Yoga Matinal": {
		{Name: "Saudação ao Sol", Emoji: "🧘", Detail: "5 ciclos • descanso 30s"},
		{Name: "Postura do Guerreiro", Emoji: "🧘", Detail: "2x30s cada lado • descanso 30s"},
		{Name: "Postura da Árvore", Emoji: "🧘", Detail: "2x30s cada lado • descanso 30s"},
		{Name: "Postura do Cachorro", Emoji: "🧘", Detail: "3x30s • descanso 30s"},
	},
	"Treino de Pernas": {
		{Name: "Agachamento", Emoji: "🏋️", Detail: "4x12 • descanso 60s"},
		{Name: "Leg Press", Emoji: "🏋️", Detail: "3x15 • descanso 60s"},
		{Name: "Cadeira Extensora", Emoji: "🏋️", Detail: "3x12 • descanso 45s"},
		{Name: "Cadeira Flexora", Emoji: "🏋️", Detail: "3x12 • descanso 45s"},
	},
}
