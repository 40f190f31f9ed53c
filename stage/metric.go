package stage

import (
	"sync/atomic"
)

// Metrics contains atomic counters of a Controller.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// CommandSendCount indicates the number of command frames transmitted, retries included.
	CommandSendCount atomic.Uint64
	// CommandRetryCount indicates the number of retransmissions.
	CommandRetryCount atomic.Uint64
	// CommandFailCount indicates the number of commands that exhausted their attempts.
	CommandFailCount atomic.Uint64
	// DerivedOutcomeCount indicates the number of commands accepted from uncorrelated status frames.
	DerivedOutcomeCount atomic.Uint64

	// StatusFrameCount indicates the number of decoded status and position frames.
	StatusFrameCount atomic.Uint64
	// ErrorFrameCount indicates the number of error frames received.
	ErrorFrameCount atomic.Uint64
	// MalformedFrameCount indicates the number of frames that failed decoding or transport validation.
	MalformedFrameCount atomic.Uint64
	// TransportErrCount indicates the number of transport send/receive failures.
	TransportErrCount atomic.Uint64

	// SegmentCount indicates the number of move segments issued.
	SegmentCount atomic.Uint64
}

func (m *Metrics) incCommandSendCount()    { m.CommandSendCount.Add(1) }
func (m *Metrics) incCommandRetryCount()   { m.CommandRetryCount.Add(1) }
func (m *Metrics) incCommandFailCount()    { m.CommandFailCount.Add(1) }
func (m *Metrics) incDerivedOutcomeCount() { m.DerivedOutcomeCount.Add(1) }
func (m *Metrics) incStatusFrameCount()    { m.StatusFrameCount.Add(1) }
func (m *Metrics) incErrorFrameCount()     { m.ErrorFrameCount.Add(1) }
func (m *Metrics) incMalformedFrameCount() { m.MalformedFrameCount.Add(1) }
func (m *Metrics) incTransportErrCount()   { m.TransportErrCount.Add(1) }
func (m *Metrics) incSegmentCount()        { m.SegmentCount.Add(1) }
