package config

import (
	"runtime"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		want     func(*Config) bool
		wantErr  bool
	}{
		{
			name: "defaults",
			want: func(c *Config) bool { return c.Parallelism == runtime.NumCPU() && len(c.Disabled) == 0 },
		},
		{
			name:     "disabled is trimmed",
			settings: map[string]any{"disabled": []string{" Removing world map... ", ""}},
			want: func(c *Config) bool {
				return len(c.Disabled) == 1 && c.IsDisabled("removing WORLD map...")
			},
		},
		{
			name:     "explicit parallelism",
			settings: map[string]any{"parallelism": 2, "output": "out", "overwrite": true},
			want:     func(c *Config) bool { return c.Parallelism == 2 && c.Output == "out" && c.Overwrite },
		},
		{
			name:     "negative parallelism",
			settings: map[string]any{"parallelism": -1},
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			for k, v := range tt.settings {
				viper.Set(k, v)
			}
			c, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !tt.want(c) {
				t.Fatalf("LoadConfig() = %+v", c)
			}
		})
	}
}

func TestIsDisabledNil(t *testing.T) {
	var c *Config
	if c.IsDisabled("anything") {
		t.Fatal("nil config disables nothing")
	}
}
