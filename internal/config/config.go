// Package config is used to load the configuration file
package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/blacktop/ilpatch/internal/utils"
	"github.com/spf13/viper"
)

// Config is the configuration struct
type Config struct {
	// Output is the directory patched modules are written to. Empty means next
	// to the input.
	Output string `mapstructure:"output"`
	// Overwrite replaces existing output files without asking.
	Overwrite bool `mapstructure:"overwrite"`
	// Parallelism bounds how many modules are patched at once.
	Parallelism int `mapstructure:"parallelism"`
	// Disabled lists modifications, by description, that never run.
	Disabled []string `mapstructure:"disabled"`
	Verbose  bool     `mapstructure:"verbose"`
}

func (c *Config) verify() error {
	if c.Parallelism < 0 {
		return fmt.Errorf("config: parallelism must be positive, got %d", c.Parallelism)
	}
	if c.Parallelism == 0 {
		c.Parallelism = runtime.NumCPU()
	}
	for i, d := range c.Disabled {
		c.Disabled[i] = strings.TrimSpace(d)
	}
	c.Disabled = slices.DeleteFunc(c.Disabled, func(d string) bool { return d == "" })
	return nil
}

// IsDisabled reports whether the modification described by desc is disabled.
func (c *Config) IsDisabled(desc string) bool {
	if c == nil {
		return false
	}
	return utils.StrSliceHas(c.Disabled, desc)
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}
	if c == nil {
		c = &Config{}
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
