// Package config loads the process-level configuration for the server:
// ops listen address, ledger root, loop cadences, log level, and the
// per-agent broker credentials. YAML file + environment override, with
// an optional local .env for development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AgentCredentials mirrors broker.Credentials without importing the
// broker package, so config stays a leaf dependency.
type AgentCredentials struct {
	Path     string
	Login    int64
	Password string
	Server   string
}

// AgentEntry is one configured Fibonacci agent: its identity plus the
// broker login it trades under.
type AgentEntry struct {
	ID          string
	Credentials AgentCredentials
}

// Config is the full set of ambient knobs the server needs before the
// domain components (ledger, gate, loop) can be constructed.
type Config struct {
	LogLevel string

	LedgerDir string

	OpsListenAddr string

	TickPeriod        time.Duration
	StatsCadence      time.Duration
	StrategistCadence time.Duration

	InitialBalance float64

	RiskGuard RiskGuardConfig

	Agents []AgentEntry
}

// RiskGuardConfig is the process-wide risk ceiling (spec.md §3
// RiskConfig), independent of any single agent.
type RiskGuardConfig struct {
	MaxDrawdownPct    float64
	MaxDailyLossPct   float64
	EmergencyClosePct float64
	WinnerNeverLoser  bool
}

// Load reads configuration from (in ascending priority) built-in
// defaults, a YAML file at configPath (if it exists), a local .env file,
// and environment variables prefixed G13_.
func Load(configPath string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("g13")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("reading config file %s: %w", configPath, err)
			}
		}
	}

	cfg := Config{
		LogLevel:      v.GetString("log_level"),
		LedgerDir:     v.GetString("ledger_dir"),
		OpsListenAddr: v.GetString("ops_listen_addr"),

		TickPeriod:        v.GetDuration("tick_period"),
		StatsCadence:      v.GetDuration("stats_cadence"),
		StrategistCadence: v.GetDuration("strategist_cadence"),

		InitialBalance: v.GetFloat64("initial_balance"),

		RiskGuard: RiskGuardConfig{
			MaxDrawdownPct:    v.GetFloat64("risk_guard.max_drawdown_pct"),
			MaxDailyLossPct:   v.GetFloat64("risk_guard.max_daily_loss_pct"),
			EmergencyClosePct: v.GetFloat64("risk_guard.emergency_close_pct"),
			WinnerNeverLoser:  v.GetBool("risk_guard.winner_never_loser"),
		},
	}

	var raw []struct {
		ID          string `mapstructure:"id"`
		Login       int64  `mapstructure:"login"`
		Password    string `mapstructure:"password"`
		Server      string `mapstructure:"server"`
		Path        string `mapstructure:"path"`
	}
	if err := v.UnmarshalKey("agents", &raw); err != nil {
		return Config{}, fmt.Errorf("decoding agents: %w", err)
	}
	for _, a := range raw {
		cfg.Agents = append(cfg.Agents, AgentEntry{
			ID: a.ID,
			Credentials: AgentCredentials{
				Path: a.Path, Login: a.Login, Password: a.Password, Server: a.Server,
			},
		})
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = defaultAgents()
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("ledger_dir", "./data")
	v.SetDefault("ops_listen_addr", ":9090")
	v.SetDefault("tick_period", "10s")
	v.SetDefault("stats_cadence", "60s")
	v.SetDefault("strategist_cadence", "300s")
	v.SetDefault("initial_balance", 10000.0)
	v.SetDefault("risk_guard.max_drawdown_pct", 10.0)
	v.SetDefault("risk_guard.max_daily_loss_pct", 5.0)
	v.SetDefault("risk_guard.emergency_close_pct", 15.0)
	v.SetDefault("risk_guard.winner_never_loser", true)
}

// defaultAgents seeds the three Fibonacci agents named in spec.md when
// no agents block is configured, so a fresh checkout runs without a
// config file.
func defaultAgents() []AgentEntry {
	return []AgentEntry{
		{ID: "fibo1", Credentials: AgentCredentials{Login: 1001}},
		{ID: "fibo2", Credentials: AgentCredentials{Login: 1002}},
		{ID: "fibo3", Credentials: AgentCredentials{Login: 1003}},
	}
}
