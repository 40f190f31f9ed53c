package scan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-xystage/stage"
)

// Config holds the scan parameters. The set of keys is closed: unknown keys
// are rejected when the configuration is parsed or updated.
type Config struct {
	MotorSpeedX int32 `yaml:"motor_speed_x"`
	MotorSpeedY int32 `yaml:"motor_speed_y"`
	MotorAccelX int32 `yaml:"motor_accel_x"`
	MotorAccelY int32 `yaml:"motor_accel_y"`

	DefaultXRange Range `yaml:"default_x_range"`
	DefaultYRange Range `yaml:"default_y_range"`
	DefaultXSteps int   `yaml:"default_x_steps"`
	DefaultYSteps int   `yaml:"default_y_steps"`

	// StabilizationDelay is the pause between arriving at a point and
	// acquiring its data.
	StabilizationDelay Duration `yaml:"stabilization_delay"`
	// MovementTimeout is the base arrival timeout of recovery moves, which
	// wait 1.5 times as long.
	MovementTimeout Duration `yaml:"movement_timeout"`

	PositionTolerance int32 `yaml:"position_tolerance"`
	RetryAttempts     int   `yaml:"retry_attempts"`
	RecoveryEnabled   bool  `yaml:"recovery_enabled"`

	AutoDisableOnExit    bool `yaml:"auto_disable_on_exit"`
	AutoReturnToJoystick bool `yaml:"auto_return_to_joystick"`
}

// DefaultConfig returns the default scan configuration.
func DefaultConfig() *Config {
	return &Config{
		MotorSpeedX:          600,
		MotorSpeedY:          600,
		MotorAccelX:          1000,
		MotorAccelY:          1000,
		DefaultXRange:        Range{Min: 0, Max: 100},
		DefaultYRange:        Range{Min: 0, Max: 100},
		DefaultXSteps:        5,
		DefaultYSteps:        5,
		StabilizationDelay:   Duration(100 * time.Millisecond),
		MovementTimeout:      Duration(10 * time.Second),
		PositionTolerance:    3,
		RetryAttempts:        3,
		RecoveryEnabled:      true,
		AutoDisableOnExit:    true,
		AutoReturnToJoystick: true,
	}
}

// LoadConfig reads a yaml configuration file. Keys missing from the file keep
// their default values.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scan: open config: %w", err)
	}
	defer f.Close()

	return ParseConfig(f)
}

// ParseConfig decodes a yaml configuration on top of the defaults and
// validates it. An empty document yields the defaults.
func ParseConfig(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Keys returns the configuration keys in declaration order.
func Keys() []string {
	keys := make([]string, len(configKeys))
	copy(keys, configKeys)

	return keys
}

var configKeys = func() []string {
	t := reflect.TypeOf(Config{})
	keys := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		keys = append(keys, name)
	}

	return keys
}()

func isKey(key string) bool {
	for _, k := range configKeys {
		if k == key {
			return true
		}
	}

	return false
}

// Set updates a single key. See Apply.
func (c *Config) Set(key string, value any) error {
	return c.Apply(map[string]any{key: value})
}

// Apply updates the keys in values. Values take the yaml representation of
// the field: ranges are two-element lists, durations are Go duration strings,
// time.Duration values or numbers of seconds.
//
// Unknown keys and invalid values are rejected with a *ConfigError and leave
// the configuration unchanged.
func (c *Config) Apply(values map[string]any) error {
	doc := make(map[string]any, len(values))
	for key, value := range values {
		if !isKey(key) {
			return &ConfigError{Key: key, Err: ErrUnknownKey}
		}
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		doc[key] = value
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	updated := *c
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&updated); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	if err := updated.Validate(); err != nil {
		return err
	}
	*c = updated

	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.MotorSpeedX <= 0:
		return invalid("motor_speed_x", c.MotorSpeedX)
	case c.MotorSpeedY <= 0:
		return invalid("motor_speed_y", c.MotorSpeedY)
	case c.MotorAccelX <= 0:
		return invalid("motor_accel_x", c.MotorAccelX)
	case c.MotorAccelY <= 0:
		return invalid("motor_accel_y", c.MotorAccelY)
	case !c.DefaultXRange.Valid():
		return invalid("default_x_range", c.DefaultXRange)
	case !c.DefaultYRange.Valid():
		return invalid("default_y_range", c.DefaultYRange)
	case c.DefaultXSteps < 1:
		return invalid("default_x_steps", c.DefaultXSteps)
	case c.DefaultYSteps < 1:
		return invalid("default_y_steps", c.DefaultYSteps)
	case c.StabilizationDelay < 0:
		return invalid("stabilization_delay", c.StabilizationDelay)
	case c.MovementTimeout <= 0:
		return invalid("movement_timeout", c.MovementTimeout)
	case c.PositionTolerance < 0 || c.PositionTolerance > stage.MaxTolerance/2:
		return invalid("position_tolerance", c.PositionTolerance)
	case c.RetryAttempts < 1 || c.RetryAttempts > stage.MaxRetryCount:
		return invalid("retry_attempts", c.RetryAttempts)
	}

	return nil
}

func invalid(key string, value any) error {
	return &ConfigError{Key: key, Err: fmt.Errorf("value %v out of range", value)}
}

// StageOptions returns the controller options carrying the exit behavior of
// the configuration.
func (c *Config) StageOptions() []stage.Option {
	return []stage.Option{
		stage.WithCloseBehavior(c.AutoDisableOnExit, c.AutoReturnToJoystick),
	}
}

// Range is an inclusive span of motor steps, written as [min, max] in yaml.
type Range struct {
	Min int32
	Max int32
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

// Valid reports whether Min does not exceed Max.
func (r Range) Valid() bool { return r.Min <= r.Max }

// IsZero reports whether the range is unset.
func (r Range) IsZero() bool { return r.Min == 0 && r.Max == 0 }

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Range) UnmarshalYAML(value *yaml.Node) error {
	var pair []int32
	if err := value.Decode(&pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("line %d: range needs 2 values, got %d", value.Line, len(pair))
	}
	r.Min, r.Max = pair[0], pair[1]

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r Range) MarshalYAML() (any, error) {
	return []int32{r.Min, r.Max}, nil
}

// Duration is a time.Duration written in yaml as a Go duration string such as
// "250ms" or as a number of seconds.
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}

	if value.Tag == "!!int" || value.Tag == "!!float" {
		secs, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*d = Duration(secs * float64(time.Second))

		return nil
	}

	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
