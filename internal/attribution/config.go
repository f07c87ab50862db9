package attribution

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/attribution-cli/internal/model"
)

// Named decay factors. The per-day multiplier applied for each day of
// distance between a touchpoint and the journey end.
const (
	DecayGentle     = 0.9
	DecayModerate   = 0.7
	DecayAggressive = 0.5
)

// DefaultTolerance is the allowed deviation of a journey's weight sum from 1.0.
const DefaultTolerance = 0.001

// DecayConfig selects the time-decay factor per customer type. Override, when
// non-zero, wins over the type policy for every journey.
type DecayConfig struct {
	B2B      float64 `yaml:"b2b"`
	B2C      float64 `yaml:"b2c"`
	Override float64 `yaml:"override,omitempty"`
}

// FactorFor resolves the decay factor for a customer type. Unknown types get
// the moderate factor.
func (d DecayConfig) FactorFor(ct model.CustomerType) float64 {
	if d.Override > 0 {
		return d.Override
	}
	switch ct {
	case model.CustomerTypeB2B:
		return d.B2B
	case model.CustomerTypeB2C:
		return d.B2C
	default:
		return DecayModerate
	}
}

// PositionConfig holds the position-based split. First and Last are the fixed
// shares for the first and last touchpoint; Middle is spread evenly across
// everything in between. The three need not sum to 1; Compute normalizes.
type PositionConfig struct {
	First  float64 `yaml:"first"`
	Last   float64 `yaml:"last"`
	Middle float64 `yaml:"middle"`
}

// Config is the model tuning configuration.
type Config struct {
	Tolerance float64        `yaml:"tolerance"`
	Decay     DecayConfig    `yaml:"decay"`
	Position  PositionConfig `yaml:"position"`
}

// DefaultConfig returns the production defaults: gentle decay for B2B,
// moderate for B2C, 40/20/40 position split.
func DefaultConfig() Config {
	return Config{
		Tolerance: DefaultTolerance,
		Decay:     DecayConfig{B2B: DecayGentle, B2C: DecayModerate},
		Position:  PositionConfig{First: 0.4, Last: 0.4, Middle: 0.2},
	}
}

// LoadConfig reads model tuning from a YAML file. Fields left unset fall back
// to the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "attribution: read config %s", path)
	}

	// The YAML has a top-level "models" key.
	var wrapper struct {
		Models Config `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return cfg, eris.Wrap(err, "attribution: parse config")
	}

	loaded := wrapper.Models
	if loaded.Tolerance > 0 {
		cfg.Tolerance = loaded.Tolerance
	}
	if loaded.Decay.B2B > 0 {
		cfg.Decay.B2B = loaded.Decay.B2B
	}
	if loaded.Decay.B2C > 0 {
		cfg.Decay.B2C = loaded.Decay.B2C
	}
	if loaded.Decay.Override > 0 {
		cfg.Decay.Override = loaded.Decay.Override
	}
	if loaded.Position.First > 0 || loaded.Position.Last > 0 || loaded.Position.Middle > 0 {
		cfg.Position = loaded.Position
	}
	return cfg, nil
}
