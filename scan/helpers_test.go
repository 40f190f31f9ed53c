package scan

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/arloliu/go-xystage/logger"
	"github.com/arloliu/go-xystage/protocol"
	"github.com/arloliu/go-xystage/simulator"
	"github.com/arloliu/go-xystage/stage"
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

// newTestController creates a disconnected controller on dev with short
// timings suitable for tests.
func newTestController(t *testing.T, dev *simulator.Device, opts ...stage.Option) *stage.Controller {
	t.Helper()

	defaults := []stage.Option{
		stage.WithCommandSpacing(time.Millisecond, 2*time.Millisecond),
		stage.WithCommandTimeout(20 * time.Millisecond),
		stage.WithMoveAckTimeout(20 * time.Millisecond),
		stage.WithMovementTimeout(100 * time.Millisecond),
		stage.WithSegmentTimeout(200 * time.Millisecond),
		stage.WithRetryCount(1),
		stage.WithRetryBackoff(time.Millisecond),
		stage.WithResponsePollInterval(time.Millisecond),
		stage.WithSettleDelay(0),
		stage.WithPingTimeout(20 * time.Millisecond),
		stage.WithPolling(5*time.Millisecond, time.Millisecond, 0),
		stage.WithShutdownPause(0),
		stage.WithoutExitHook(),
	}

	cfg, err := stage.NewConfig(append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("newTestController: %v", err)
	}

	ctrl, err := stage.New(dev, cfg)
	if err != nil {
		t.Fatalf("newTestController: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Disconnect() })

	return ctrl
}

// newTestScanConfig returns a scan configuration with short timings.
func newTestScanConfig() *Config {
	cfg := DefaultConfig()
	cfg.StabilizationDelay = 0
	cfg.MovementTimeout = Duration(100 * time.Millisecond)
	cfg.RetryAttempts = 2

	return cfg
}

// newTestScanner creates a scanner on a fresh controller for dev.
func newTestScanner(t *testing.T, dev *simulator.Device, cfg *Config, opts ...Option) *Scanner {
	t.Helper()

	if cfg == nil {
		cfg = newTestScanConfig()
	}

	defaults := []Option{
		WithRecoveryPause(0),
		WithHomeSettle(0),
		WithSetupPause(0),
		WithShutdownPause(0),
	}

	s, err := New(newTestController(t, dev), cfg, append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("newTestScanner: %v", err)
	}

	return s
}

// newInitializedScanner creates a scanner with an initialized 2x2 scan over
// [0, 100] on both axes.
func newInitializedScanner(t *testing.T, dev *simulator.Device, opts ...Option) *Scanner {
	t.Helper()

	s := newTestScanner(t, dev, nil, opts...)
	grid := Grid{XRange: Range{0, 100}, YRange: Range{0, 100}, XSteps: 2, YSteps: 2}
	if err := s.InitializeScan(context.Background(), grid); err != nil {
		t.Fatalf("newInitializedScanner: %v", err)
	}

	return s
}

// recorder collects acquired samples.
type recorder struct {
	samples []Sample
	failAt  int
	err     error
}

func (r *recorder) acquire(_ context.Context, s Sample) error {
	if r.err != nil && len(r.samples) == r.failAt {
		return r.err
	}
	r.samples = append(r.samples, s)

	return nil
}

// paramPairs returns the parameter pairs of the commands dev received with id.
func paramPairs(dev *simulator.Device, id protocol.CommandID) [][2]int32 {
	var out [][2]int32
	for _, cmd := range dev.Commands(id) {
		out = append(out, [2]int32{cmd.Param1, cmd.Param2})
	}

	return out
}
