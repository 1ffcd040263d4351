package main

import (
	"time"

	"github.com/BurntSushi/toml"
)

// ctlConfig is the optional file form of blogctl's settings. Flags given on
// the command line win over the file.
type ctlConfig struct {
	DatabaseURL string   `toml:"database_url"`
	LogLevel    string   `toml:"log_level"`
	Timeout     duration `toml:"timeout"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

const defaultTimeout = 5 * time.Minute

// loadConfig reads path when it is set. A missing file is an error; an empty
// path yields the defaults.
func loadConfig(path string) (ctlConfig, error) {
	cfg := ctlConfig{Timeout: duration{defaultTimeout}}
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return ctlConfig{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return ctlConfig{}, &unknownKeyError{Key: undecoded[0].String()}
	}
	if cfg.Timeout.Duration <= 0 {
		cfg.Timeout.Duration = defaultTimeout
	}
	return cfg, nil
}

type unknownKeyError struct {
	Key string
}

func (e *unknownKeyError) Error() string {
	return "unknown config key " + e.Key
}
