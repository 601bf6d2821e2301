// Package config loads the cycle-switch daemon configuration from TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/sweeney/cycle-switch/internal/gpio"
	"github.com/sweeney/cycle-switch/internal/switcher"
)

// Config is the daemon configuration. Durations in the cycle section are
// whole seconds, matching the switch's nominal timer resolution.
type Config struct {
	Name   string `toml:"name"`
	Output Output `toml:"output"`
	Cycle  Cycle  `toml:"cycle"`
	MQTT   MQTT   `toml:"mqtt"`
	HTTP   HTTP   `toml:"http"`
	Log    Log    `toml:"log"`
}

// Output selects the GPIO line driving the relay.
type Output struct {
	Chip       string `toml:"chip"`
	Pin        int    `toml:"pin"`
	ActiveHigh bool   `toml:"active_high"`
}

// Cycle holds the work parameters applied at startup.
type Cycle struct {
	WorkSeconds  uint32 `toml:"work"`
	PauseSeconds uint32 `toml:"pause"`
	Count        uint32 `toml:"count"`
	Autostart    bool   `toml:"autostart"`
}

// MQTT configures the broker connection.
type MQTT struct {
	Broker    string `toml:"broker"`
	Prefix    string `toml:"prefix"`
	Heartbeat string `toml:"heartbeat"`
}

// HTTP configures the status server. An empty Addr disables it.
type HTTP struct {
	Addr string `toml:"addr"`
}

// Log configures logging.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Name: "switch",
		Output: Output{
			Chip:       gpio.DefaultChip,
			Pin:        gpio.DefaultPin,
			ActiveHigh: true,
		},
		MQTT: MQTT{
			Broker:    "tcp://192.168.1.200:1883",
			Prefix:    "cycle-switch",
			Heartbeat: "15m",
		},
		HTTP: HTTP{Addr: ":80"},
		Log:  Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML data over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("decode config: %s", strict.String())
		}
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HasCycle reports whether work parameters were configured.
func (c Config) HasCycle() bool {
	return c.Cycle.WorkSeconds != 0 || c.Cycle.PauseSeconds != 0 || c.Cycle.Count != 0
}

// Params converts the cycle section to switch parameters.
func (c Config) Params() switcher.Params {
	return switcher.Params{
		Work:  time.Duration(c.Cycle.WorkSeconds) * time.Second,
		Pause: time.Duration(c.Cycle.PauseSeconds) * time.Second,
		Count: c.Cycle.Count,
	}
}

// HeartbeatInterval parses the heartbeat duration. Empty or "0" disables it.
func (c Config) HeartbeatInterval() (time.Duration, error) {
	if c.MQTT.Heartbeat == "" || c.MQTT.Heartbeat == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.MQTT.Heartbeat)
	if err != nil {
		return 0, fmt.Errorf("mqtt.heartbeat: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("mqtt.heartbeat: must not be negative")
	}
	return d, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("name: must not be empty"))
	}
	if strings.ContainsAny(c.Name, "/+#") {
		errs = append(errs, fmt.Errorf("name: %q must not contain MQTT topic characters", c.Name))
	}
	if c.Output.Chip == "" {
		errs = append(errs, errors.New("output.chip: must not be empty"))
	}
	if c.Output.Pin < 0 {
		errs = append(errs, fmt.Errorf("output.pin: %d must not be negative", c.Output.Pin))
	}
	if c.HasCycle() {
		if err := c.Params().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("cycle: %w", err))
		}
	} else if c.Cycle.Autostart {
		errs = append(errs, errors.New("cycle.autostart: requires work parameters"))
	}
	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker: must not be empty"))
	}
	if _, err := c.HeartbeatInterval(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// String renders the configuration as TOML.
func (c Config) String() string {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
