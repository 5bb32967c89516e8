package maincmd

import "github.com/caarlos0/env/v6"

// Config holds the knobs that tune the VM's runtime behavior, populated
// from LOXVM_*-prefixed environment variables: a heap grow factor of 2, no
// step limit, and stress mode off by default.
type Config struct {
	StressGC     bool `env:"LOXVM_STRESS_GC" envDefault:"false"`
	MaxSteps     int  `env:"LOXVM_MAX_STEPS" envDefault:"0"`
	GCGrowFactor int  `env:"LOXVM_GC_GROW_FACTOR" envDefault:"2"`
}

// LoadConfig parses Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
