// Package config loads the YAML configuration of the sieve CLI.
//
// Example:
//
//	capacity: 5
//	observe_interval: 2s
//	consumers:
//	  - name: even
//	    predicate: even
//	  - name: big
//	    predicate: positive
//	journal: ~/.sieve/journal.db
//	metrics_addr: ":9090"
//
// Fields missing from the file keep their [Default] values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/teenjuna/sieve"
	"github.com/teenjuna/sieve/predicate"
)

var (
	ErrInvalid = errors.New("invalid config")
)

// Config holds the settings of a run.
type Config struct {
	// Capacity of the buffer.
	Capacity int `yaml:"capacity"`
	// ObserveInterval is the period of buffer snapshots. Zero disables them.
	ObserveInterval Duration `yaml:"observe_interval"`
	// Consumers in declaration order.
	Consumers []Consumer `yaml:"consumers"`
	// Journal is the SQLite file runs are recorded to. Empty disables the journal.
	Journal string `yaml:"journal,omitempty"`
	// MetricsAddr is the address Prometheus metrics are served on. Empty disables the server.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// Consumer binds a consumer name to a predicate from the [predicate] registry.
type Consumer struct {
	Name string `yaml:"name"`
	// Predicate name. Defaults to Name.
	Predicate string `yaml:"predicate,omitempty"`
}

// Duration is a [time.Duration] written as "2s", "500ms" and so on.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(data []byte) error {
	var text string
	if err := yaml.Unmarshal(data, &text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the configuration used when no file is given: capacity 5, snapshots every
// 2s and the even, odd and prime consumers.
func Default() *Config {
	return &Config{
		Capacity:        5,
		ObserveInterval: Duration(2 * time.Second),
		Consumers: []Consumer{
			{Name: "even", Predicate: "even"},
			{Name: "odd", Predicate: "odd"},
			{Name: "prime", Predicate: "prime"},
		},
	}
}

// Load reads the configuration file at path on top of [Default].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of [Default] and validates the result. Unknown fields are
// rejected.
func Parse(data []byte) (*Config, error) {
	var f file
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return nil, err
	}

	cfg := Default()
	if f.Capacity != nil {
		cfg.Capacity = *f.Capacity
	}
	if f.ObserveInterval != nil {
		cfg.ObserveInterval = *f.ObserveInterval
	}
	if f.Consumers != nil {
		cfg.Consumers = f.Consumers
	}
	cfg.Journal = f.Journal
	cfg.MetricsAddr = f.MetricsAddr

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// file is Config as written, where a missing field differs from a zero one.
type file struct {
	Capacity        *int       `yaml:"capacity"`
	ObserveInterval *Duration  `yaml:"observe_interval"`
	Consumers       []Consumer `yaml:"consumers"`
	Journal         string     `yaml:"journal"`
	MetricsAddr     string     `yaml:"metrics_addr"`
}

// Validate checks the values a run can't start with. Consumer names are checked again by
// [sieve.Run].
func (c *Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("%w: capacity can't be < 1", ErrInvalid)
	}
	if c.ObserveInterval < 0 {
		return fmt.Errorf("%w: observe_interval can't be < 0", ErrInvalid)
	}
	if _, err := c.Resolve(); err != nil {
		return err
	}
	return nil
}

// Resolve looks up every consumer's predicate.
func (c *Config) Resolve() ([]sieve.Consumer, error) {
	if len(c.Consumers) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, sieve.ErrNoConsumers)
	}

	consumers := make([]sieve.Consumer, 0, len(c.Consumers))
	for _, consumer := range c.Consumers {
		name := strings.TrimSpace(consumer.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: consumer name can't be blank", ErrInvalid)
		}

		predicateName := consumer.Predicate
		if strings.TrimSpace(predicateName) == "" {
			predicateName = name
		}

		match, ok := predicate.Lookup(predicateName)
		if !ok {
			return nil, fmt.Errorf(
				"%w: consumer %s: unknown predicate %q", ErrInvalid, name, predicateName,
			)
		}

		consumers = append(consumers, sieve.Consumer{Name: name, Match: match})
	}

	return consumers, nil
}

// SetConsumers replaces the consumers with the given predicate names, each consumer named
// after its predicate.
func (c *Config) SetConsumers(names []string) {
	c.Consumers = make([]Consumer, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		c.Consumers = append(c.Consumers, Consumer{Name: name, Predicate: name})
	}
}

// JournalPath returns Journal with a leading "~" expanded to the home directory.
func (c *Config) JournalPath() (string, error) {
	return expandHome(c.Journal)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
