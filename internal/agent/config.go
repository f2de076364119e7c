// Package agent implements the Strategy Agent (spec.md §4.5): a single
// concrete type parameterized by its config, since the three Fibo agents
// differ only in configuration (spec.md §9 design note).
package agent

import "github.com/atlas-desktop/g13trader/internal/position"

// TPSLConfig mirrors spec.md §3 AgentConfig.tpsl_config.
type TPSLConfig struct {
	TPPct               float64 `json:"tp_pct"`
	SLPct               float64 `json:"sl_pct"`
	TrailingStartPct    float64 `json:"trailing_start_pct"`
	TrailingDistancePct float64 `json:"trailing_distance_pct"`
	TrailingEnabled     bool    `json:"trailing_enabled"`
	BreakEvenPct        float64 `json:"break_even_pct"`
	BreakEvenEnabled    bool    `json:"break_even_enabled"`
	MaxSpreadPoints     float64 `json:"max_spread_points"`
	SpreadCheckEnabled  bool    `json:"spread_check_enabled"`
}

// ToPositionConfig projects the trailing/break-even fields the position
// manager needs.
func (t TPSLConfig) ToPositionConfig() position.TPSLConfig {
	return position.TPSLConfig{
		TrailingEnabled:     t.TrailingEnabled,
		TrailingStartPct:    t.TrailingStartPct,
		TrailingDistancePct: t.TrailingDistancePct,
		BreakEvenEnabled:    t.BreakEvenEnabled,
		BreakEvenPct:        t.BreakEvenPct,
	}
}

// Config is one agent's full configuration (spec.md §3 AgentConfig).
type Config struct {
	Enabled            bool       `json:"enabled"`
	Symbol             string     `json:"symbol"`
	Timeframe          string     `json:"timeframe"`
	FiboLevel          string     `json:"fibo_level"`
	FiboTolerancePct   float64    `json:"fibo_tolerance_pct"`
	CooldownSeconds    int        `json:"cooldown_seconds"`
	PositionSizePct    float64    `json:"position_size_pct"`
	MaxPositions       int        `json:"max_positions"`
	KillzoneEnabled    bool       `json:"killzone_enabled"`
	KillzoneStart      string     `json:"killzone_start"`
	KillzoneEnd        string     `json:"killzone_end"`
	IAAdjustEnabled    bool       `json:"ia_adjust_enabled"`
	TPSL               TPSLConfig `json:"tpsl_config"`
}

// Bounds for spec.md §3's AgentConfig field ranges, shared by validation
// and the Strategist's guard-rails.
var (
	BoundsFiboTolerancePct   = [2]float64{0.5, 5.0}
	BoundsCooldownSeconds    = [2]float64{60, 600}
	BoundsPositionSizePct    = [2]float64{0.005, 0.05}
	BoundsTPPct              = [2]float64{0.1, 1.0}
	BoundsSLPct              = [2]float64{0.2, 1.0}
)
