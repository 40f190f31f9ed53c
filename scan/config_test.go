package scan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-xystage/stage"
)

func TestDefaultConfig(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	require.NoError(cfg.Validate())
	require.Equal(int32(600), cfg.MotorSpeedX)
	require.Equal(int32(1000), cfg.MotorAccelY)
	require.Equal(Range{0, 100}, cfg.DefaultXRange)
	require.Equal(5, cfg.DefaultYSteps)
	require.Equal(100*time.Millisecond, cfg.StabilizationDelay.Std())
	require.Equal(10*time.Second, cfg.MovementTimeout.Std())
	require.Equal(int32(3), cfg.PositionTolerance)
	require.Equal(3, cfg.RetryAttempts)
	require.True(cfg.RecoveryEnabled)
	require.True(cfg.AutoDisableOnExit)
	require.True(cfg.AutoReturnToJoystick)

	require.Len(Keys(), 15)
	require.Equal("motor_speed_x", Keys()[0])
}

func TestParseConfig(t *testing.T) {
	require := require.New(t)

	doc := `
motor_speed_x: 800
default_x_range: [10, 90]
default_y_steps: 3
stabilization_delay: 250ms
movement_timeout: 2.5
recovery_enabled: false
`
	cfg, err := ParseConfig(strings.NewReader(doc))
	require.NoError(err)

	require.Equal(int32(800), cfg.MotorSpeedX)
	require.Equal(int32(600), cfg.MotorSpeedY)
	require.Equal(Range{10, 90}, cfg.DefaultXRange)
	require.Equal(3, cfg.DefaultYSteps)
	require.Equal(250*time.Millisecond, cfg.StabilizationDelay.Std())
	require.Equal(2500*time.Millisecond, cfg.MovementTimeout.Std())
	require.False(cfg.RecoveryEnabled)
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		description string
		doc         string
	}{
		{"unknown key", "motor_speed_z: 100\n"},
		{"bad range length", "default_x_range: [1, 2, 3]\n"},
		{"bad duration", "stabilization_delay: soon\n"},
		{"out of range", "retry_attempts: 0\n"},
		{"negative speed", "motor_speed_y: -1\n"},
		{"wrong type", "default_x_steps: many\n"},
		{"reversed x range", "default_x_range: [100, 0]\n"},
		{"reversed y range", "default_y_range: [5, -5]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			_, err := ParseConfig(strings.NewReader(tt.doc))
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "scan.yaml")
	require.NoError(os.WriteFile(path, []byte("default_x_steps: 7\nposition_tolerance: 4\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(err)
	require.Equal(7, cfg.DefaultXSteps)
	require.Equal(int32(4), cfg.PositionTolerance)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(err)
}

func TestConfig_Set(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	require.NoError(cfg.Set("motor_speed_x", 450))
	require.NoError(cfg.Set("default_y_range", []int{-20, 20}))
	require.NoError(cfg.Set("stabilization_delay", 2*time.Second))
	require.NoError(cfg.Set("movement_timeout", "1m"))
	require.NoError(cfg.Set("auto_disable_on_exit", false))
	require.NoError(cfg.Set("default_x_range", Range{5, 6}))

	require.Equal(int32(450), cfg.MotorSpeedX)
	require.Equal(Range{-20, 20}, cfg.DefaultYRange)
	require.Equal(Range{5, 6}, cfg.DefaultXRange)
	require.Equal(2*time.Second, cfg.StabilizationDelay.Std())
	require.Equal(time.Minute, cfg.MovementTimeout.Std())
	require.False(cfg.AutoDisableOnExit)
}

func TestConfig_SetRejects(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()

	err := cfg.Set("motor_speed", 100)
	require.ErrorIs(err, ErrConfiguration)
	require.ErrorIs(err, ErrUnknownKey)

	var cfgErr *ConfigError
	require.ErrorAs(err, &cfgErr)
	require.Equal("motor_speed", cfgErr.Key)

	err = cfg.Set("retry_attempts", 0)
	require.ErrorAs(err, &cfgErr)
	require.Equal("retry_attempts", cfgErr.Key)

	err = cfg.Set("default_x_range", Range{100, 0})
	require.ErrorAs(err, &cfgErr)
	require.Equal("default_x_range", cfgErr.Key)

	// a rejected update leaves the configuration unchanged
	err = cfg.Apply(map[string]any{"motor_speed_x": 300, "position_tolerance": -1})
	require.ErrorIs(err, ErrConfiguration)
	require.Equal(DefaultConfig(), cfg)
}

func TestConfig_StageOptions(t *testing.T) {
	require := require.New(t)

	cfg := DefaultConfig()
	cfg.AutoReturnToJoystick = false

	stageCfg, err := stage.NewConfig(cfg.StageOptions()...)
	require.NoError(err)
	require.True(stageCfg.AutoDisableOnClose())
	require.False(stageCfg.AutoJoystickOnClose())
}
