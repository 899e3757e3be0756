package ui

// Config contains drill-specific configuration.
type Config struct {
	// Tokens are the items practised, in order.
	Tokens []string

	// PrefetchAhead is how many upcoming tokens are warmed.
	PrefetchAhead int `env:"CUECAST_DRILL_PREFETCH_AHEAD" envDefault:"3"`

	// ComboStreak is the streak at which praise switches to combo.
	ComboStreak int `env:"CUECAST_DRILL_COMBO_STREAK" envDefault:"3"`

	// AutoPlay pronounces each token when it is shown.
	AutoPlay bool `env:"CUECAST_DRILL_AUTOPLAY" envDefault:"true"`

	EnableMouse bool
}
