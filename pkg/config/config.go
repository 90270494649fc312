// Package config holds the producer/consumer run configuration: queue size,
// iterations per phase and the two delay schedules.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config describes one run. Each entry of ProducerDelays (ConsumerDelays) is a
// phase of Iterations items; the task sleeps for that entry's delay after
// every item of the phase.
type Config struct {
	Capacity       int             `yaml:"capacity" validate:"gt=0"`
	Iterations     int             `yaml:"iterations" validate:"gt=0"`
	ProducerDelays []time.Duration `yaml:"producer_delays" validate:"min=1,dive,gte=0s"`
	ConsumerDelays []time.Duration `yaml:"consumer_delays" validate:"min=1,dive,gte=0s"`
	Logger         Logger          `yaml:"logger"`
}

// Logger is the configuration for the logger
type Logger struct {
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`
	FileLogName string `yaml:"file_log_name"`
	MaxSize     int    `yaml:"max_size" validate:"gte=0"`    // megabytes
	MaxBackups  int    `yaml:"max_backups" validate:"gte=0"` // files
	MaxAge      int    `yaml:"max_age" validate:"gte=0"`     // days
	Compress    bool   `yaml:"compress"`
}

// Default returns the schedule of the classic demo: a 10-slot queue, 20 items
// per phase, producer at 100ms then 200ms, consumer at 200ms then 500ms.
func Default() Config {
	return Config{
		Capacity:       10,
		Iterations:     20,
		ProducerDelays: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond},
		ConsumerDelays: []time.Duration{200 * time.Millisecond, 500 * time.Millisecond},
		Logger: Logger{
			LogLevel:   "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config")
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ProducerItems is the total number of items the producer pushes.
func (c Config) ProducerItems() int {
	return c.Iterations * len(c.ProducerDelays)
}

// ConsumerItems is the total number of items the consumer pops.
func (c Config) ConsumerItems() int {
	return c.Iterations * len(c.ConsumerDelays)
}

// Balanced reports whether both tasks move the same number of items. An
// unbalanced run leaves one task blocked forever once the other finishes.
func (c Config) Balanced() bool {
	return c.ProducerItems() == c.ConsumerItems()
}

// Validate checks every field constraint.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "failed to validate config")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.Wrap(ErrInvalidConfig, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	rule := fe.Tag()
	if fe.Param() != "" {
		rule += "=" + fe.Param()
	}
	return fmt.Sprintf("%s must satisfy %s, got %v", field, rule, fe.Value())
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
