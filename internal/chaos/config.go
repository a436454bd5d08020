package chaos

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds chaos configuration
type Config struct {
	Enabled       bool   `envconfig:"ENABLED" default:"false"`
	Profile       string `envconfig:"PROFILE"`
	TargetOrderID string `envconfig:"TARGET_ORDER_ID"`
	DropPct       int    `envconfig:"DROP_PCT" default:"0"`
	DelayMsMin    int    `envconfig:"DELAY_MS_MIN" default:"0"`
	DelayMsMax    int    `envconfig:"DELAY_MS_MAX" default:"0"`
	Seed          int64  `envconfig:"SEED" default:"1"`
	WindowMs      int    `envconfig:"WINDOW_MS" default:"0"`
}

// LoadConfig loads CHAOS_* variables from the environment
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("chaos", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process chaos config: %w", err)
	}
	return &cfg, nil
}

// ParseProfile parses a profile string like "drop-pct=30,delay=50-250"
func ParseProfile(profile string) (dropPct int, delayMin int, delayMax int, err error) {
	if profile == "" {
		return 0, 0, 0, nil
	}

	for _, part := range strings.Split(profile, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case strings.HasPrefix(part, "drop-pct="):
			dropPct, err = strconv.Atoi(strings.TrimPrefix(part, "drop-pct="))
			if err != nil || dropPct < 0 || dropPct > 100 {
				return 0, 0, 0, fmt.Errorf("invalid drop-pct %q", part)
			}
		case strings.HasPrefix(part, "delay="):
			lo, hi, ok := strings.Cut(strings.TrimPrefix(part, "delay="), "-")
			if !ok {
				hi = lo
			}
			delayMin, err = strconv.Atoi(lo)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid delay min: %w", err)
			}
			delayMax, err = strconv.Atoi(hi)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid delay max: %w", err)
			}
			if delayMin < 0 || delayMax < delayMin {
				return 0, 0, 0, fmt.Errorf("invalid delay range %q", part)
			}
		default:
			return 0, 0, 0, fmt.Errorf("unknown chaos setting %q", part)
		}
	}

	return dropPct, delayMin, delayMax, nil
}
