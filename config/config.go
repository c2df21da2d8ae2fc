package config

import (
	"time"

	"github.com/pitabwire/frame/config"
)

// FlowConfig holds configuration for the flow service.
type FlowConfig struct {
	config.ConfigurationDefault

	// Phrases
	PhrasesDir string `envDefault:""  env:"FLOW_PHRASES_DIR"`
	PhraseSeed uint64 `envDefault:"0" env:"FLOW_PHRASE_SEED"`

	// Sessions
	SessionShards             int  `envDefault:"32"   env:"FLOW_SESSION_SHARDS"`
	SessionMaxInactiveMinutes int  `envDefault:"30"   env:"FLOW_SESSION_MAX_INACTIVE_MINUTES"`
	ReaperIntervalSec         int  `envDefault:"60"   env:"FLOW_REAPER_INTERVAL_SEC"`
	RequireAuth               bool `envDefault:"true" env:"FLOW_REQUIRE_AUTH"`

	// Hand-off
	HandoffEnabled    bool   `envDefault:"true"  env:"FLOW_HANDOFF_ENABLED"`
	DeskURL           string `envDefault:""      env:"FLOW_DESK_URL"`
	DeskSecret        string `envDefault:""      env:"FLOW_DESK_SECRET"`
	DeskAllowPrivate  bool   `envDefault:"false" env:"FLOW_DESK_ALLOW_PRIVATE"`
	DeskMaxAttempts   int    `envDefault:"5"     env:"FLOW_DESK_MAX_ATTEMPTS"`
	DeskTimeoutSec    int    `envDefault:"10"    env:"FLOW_DESK_TIMEOUT_SEC"`
	DeskBackoffSec    int    `envDefault:"1"     env:"FLOW_DESK_BACKOFF_INITIAL_SEC"`
	DeskBackoffMaxSec int    `envDefault:"60"    env:"FLOW_DESK_BACKOFF_MAX_SEC"`
	CBFailThreshold   int    `envDefault:"5"     env:"FLOW_DESK_CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec int    `envDefault:"60"    env:"FLOW_DESK_CB_RESET_TIMEOUT_SEC"`
}

// ReaperInterval returns how often idle sessions are swept.
func (c *FlowConfig) ReaperInterval() time.Duration {
	if c.ReaperIntervalSec <= 0 {
		return time.Minute
	}
	return time.Duration(c.ReaperIntervalSec) * time.Second
}

// SessionMaxInactive returns how long a session may stay idle.
func (c *FlowConfig) SessionMaxInactive() time.Duration {
	if c.SessionMaxInactiveMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.SessionMaxInactiveMinutes) * time.Minute
}

// DeskEnabled reports whether new tickets are pushed to an operator desk.
func (c *FlowConfig) DeskEnabled() bool {
	return c.HandoffEnabled && c.DeskURL != ""
}
