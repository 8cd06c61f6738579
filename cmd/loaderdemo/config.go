package main

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the demo binary's own configuration, loaded from the
// environment via envconfig, grounded on UnAfraid-wg-ui's pkg/config
// package which uses the same library the same way.
type Config struct {
	LogLevel      string        `default:"info" split_words:"true"`
	BoltPath      string        `default:"./loaderdemo.bolt" envconfig:"bolt_path"`
	BoltTimeout   time.Duration `default:"1s" split_words:"true"`
	SQLitePath    string        `default:":memory:" envconfig:"sqlite_path"`
	LoaderTimeout time.Duration `default:"5s" split_words:"true"`
}

func loadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("loaderdemo", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	return &cfg, nil
}
