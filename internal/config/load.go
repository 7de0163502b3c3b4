package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Load reads an optional .env file, then the process environment.
func Load(files ...string) (*Config, error) {
	// a missing .env is fine outside development
	_ = godotenv.Load(files...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
