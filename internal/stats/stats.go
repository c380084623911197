// Package stats tracks session error and traffic counters. Counters are
// plain atomics so the hot path never touches a lock; a Prometheus
// collector view is exported for the server's metrics listener.
package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the error-statistics block shared by a supervisor and its
// sessions. All fields are safe for concurrent use.
type Stats struct {
	DecodeFailures    atomic.Uint64 // payload codec rejections
	EncodeFailures    atomic.Uint64 // outbound frames dropped as unsendable
	ImageLoadFailures atomic.Uint64 // JPEG decode failures
	DataCorruptions   atomic.Uint64 // checksum / signature mismatches
	NetworkErrors     atomic.Uint64 // transport-level failures and timeouts

	FramesSent     atomic.Uint64
	FramesReceived atomic.Uint64
	BytesIn        atomic.Uint64
	BytesOut       atomic.Uint64

	SessionsStarted atomic.Uint64
	SessionsClosed  atomic.Uint64
	SessionsFailed  atomic.Uint64
}

// New returns a zeroed Stats block.
func New() *Stats { return &Stats{} }

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	DecodeFailures    uint64
	EncodeFailures    uint64
	ImageLoadFailures uint64
	DataCorruptions   uint64
	NetworkErrors     uint64
	FramesSent        uint64
	FramesReceived    uint64
	BytesIn           uint64
	BytesOut          uint64
	SessionsStarted   uint64
	SessionsClosed    uint64
	SessionsFailed    uint64
}

// Snapshot reads every counter once.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		DecodeFailures:    s.DecodeFailures.Load(),
		EncodeFailures:    s.EncodeFailures.Load(),
		ImageLoadFailures: s.ImageLoadFailures.Load(),
		DataCorruptions:   s.DataCorruptions.Load(),
		NetworkErrors:     s.NetworkErrors.Load(),
		FramesSent:        s.FramesSent.Load(),
		FramesReceived:    s.FramesReceived.Load(),
		BytesIn:           s.BytesIn.Load(),
		BytesOut:          s.BytesOut.Load(),
		SessionsStarted:   s.SessionsStarted.Load(),
		SessionsClosed:    s.SessionsClosed.Load(),
		SessionsFailed:    s.SessionsFailed.Load(),
	}
}

// Collector adapts a Stats block to the Prometheus scrape interface.
type Collector struct {
	stats *Stats
}

var (
	descDecodeFailures    = prometheus.NewDesc("rdcp_decode_failures_total", "Payload codec rejections.", nil, nil)
	descEncodeFailures    = prometheus.NewDesc("rdcp_encode_failures_total", "Outbound frames dropped as unsendable.", nil, nil)
	descImageLoadFailures = prometheus.NewDesc("rdcp_image_load_failures_total", "JPEG decode failures.", nil, nil)
	descDataCorruptions   = prometheus.NewDesc("rdcp_data_corruptions_total", "Checksum and signature mismatches.", nil, nil)
	descNetworkErrors     = prometheus.NewDesc("rdcp_network_errors_total", "Transport failures and timeouts.", nil, nil)
	descFramesSent        = prometheus.NewDesc("rdcp_frames_sent_total", "Protocol frames written to the wire.", nil, nil)
	descFramesReceived    = prometheus.NewDesc("rdcp_frames_received_total", "Protocol frames parsed from the wire.", nil, nil)
	descBytesIn           = prometheus.NewDesc("rdcp_bytes_in_total", "Bytes read from connections.", nil, nil)
	descBytesOut          = prometheus.NewDesc("rdcp_bytes_out_total", "Bytes written to connections.", nil, nil)
	descSessionsStarted   = prometheus.NewDesc("rdcp_sessions_started_total", "Sessions accepted or dialed.", nil, nil)
	descSessionsClosed    = prometheus.NewDesc("rdcp_sessions_closed_total", "Sessions closed cleanly.", nil, nil)
	descSessionsFailed    = prometheus.NewDesc("rdcp_sessions_failed_total", "Sessions terminated by an error.", nil, nil)
)

// NewCollector wraps s for registration with a Prometheus registry.
func NewCollector(s *Stats) *Collector { return &Collector{stats: s} }

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descDecodeFailures
	ch <- descEncodeFailures
	ch <- descImageLoadFailures
	ch <- descDataCorruptions
	ch <- descNetworkErrors
	ch <- descFramesSent
	ch <- descFramesReceived
	ch <- descBytesIn
	ch <- descBytesOut
	ch <- descSessionsStarted
	ch <- descSessionsClosed
	ch <- descSessionsFailed
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()
	counter := func(desc *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
	counter(descDecodeFailures, snap.DecodeFailures)
	counter(descEncodeFailures, snap.EncodeFailures)
	counter(descImageLoadFailures, snap.ImageLoadFailures)
	counter(descDataCorruptions, snap.DataCorruptions)
	counter(descNetworkErrors, snap.NetworkErrors)
	counter(descFramesSent, snap.FramesSent)
	counter(descFramesReceived, snap.FramesReceived)
	counter(descBytesIn, snap.BytesIn)
	counter(descBytesOut, snap.BytesOut)
	counter(descSessionsStarted, snap.SessionsStarted)
	counter(descSessionsClosed, snap.SessionsClosed)
	counter(descSessionsFailed, snap.SessionsFailed)
}
