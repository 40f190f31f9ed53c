package stage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/arloliu/go-xystage/logger"
	"github.com/arloliu/go-xystage/protocol"
	"github.com/arloliu/go-xystage/simulator"
)

func TestMain(m *testing.M) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var level logger.LogLevel

	switch logLevel {
	case "debug":
		level = logger.DebugLevel
	case "info":
		level = logger.InfoLevel
	case "warn":
		level = logger.WarnLevel
	case "error":
		level = logger.ErrorLevel
	default:
		level = logger.InfoLevel
	}

	logger.SetLevel(level)

	os.Exit(m.Run())
}

// newTestConfig creates a Config with short timings suitable for tests.
func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()

	defaults := []Option{
		WithCommandSpacing(time.Millisecond, 2*time.Millisecond),
		WithCommandTimeout(50 * time.Millisecond),
		WithMoveAckTimeout(50 * time.Millisecond),
		WithMovementTimeout(100 * time.Millisecond),
		WithSegmentTimeout(time.Second),
		WithRetryBackoff(time.Millisecond),
		WithResponsePollInterval(time.Millisecond),
		WithSettleDelay(0),
		WithPingTimeout(50 * time.Millisecond),
		WithPolling(5*time.Millisecond, time.Millisecond, 0),
		WithShutdownPause(0),
		WithoutExitHook(),
	}

	cfg, err := NewConfig(append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("newTestConfig: %v", err)
	}

	return cfg
}

// newTestController creates a controller connected to dev.
func newTestController(t *testing.T, dev *simulator.Device, opts ...Option) *Controller {
	t.Helper()

	c, err := New(dev, newTestConfig(t, opts...))
	if err != nil {
		t.Fatalf("newTestController: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("newTestController: connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Disconnect() })

	return c
}

// statusFrame returns a status frame echoing the status command.
func statusFrame(x, y int32, running bool) protocol.StatusResponse {
	return protocol.StatusResponse{
		CommandEcho: uint8(protocol.CmdStatus),
		X:           x,
		Y:           y,
		XRunning:    running,
		Mode:        protocol.ModeSerial,
	}
}

// positionFrame returns an uncorrelated position frame.
func positionFrame(x, y int32) protocol.StatusResponse {
	return protocol.StatusResponse{Position: true, X: x, Y: y, Mode: protocol.ModeSerial}
}
