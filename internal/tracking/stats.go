package tracking

import (
	"sync"
	"time"

	"github.com/banshee-data/storyboard.xr/internal/monitoring"
)

// StatsRecorder collects ingestion counters.
type StatsRecorder interface {
	AddDatagram(bytes int)
	AddDecodeError()
	AddPose(left bool)
	LogStats()
}

// noopStats is the default when no recorder is configured.
type noopStats struct{}

func (noopStats) AddDatagram(int) {}
func (noopStats) AddDecodeError() {}
func (noopStats) AddPose(bool)    {}
func (noopStats) LogStats()       {}

// PoseStats counts datagrams and decoded poses between reports.
type PoseStats struct {
	mu           sync.Mutex
	datagrams    int64
	bytes        int64
	decodeErrors int64
	left, right  int64
	lastReset    time.Time
	now          func() time.Time
}

// NewPoseStats creates an empty PoseStats.
func NewPoseStats() *PoseStats {
	return &PoseStats{lastReset: time.Now(), now: time.Now}
}

// AddDatagram counts one received datagram.
func (ps *PoseStats) AddDatagram(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.datagrams++
	ps.bytes += int64(bytes)
}

// AddDecodeError counts a datagram that failed to decode.
func (ps *PoseStats) AddDecodeError() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.decodeErrors++
}

// AddPose counts a decoded pose for one hand.
func (ps *PoseStats) AddPose(left bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if left {
		ps.left++
	} else {
		ps.right++
	}
}

// Snapshot is a reporting period's worth of counters.
type Snapshot struct {
	Datagrams    int64
	Bytes        int64
	DecodeErrors int64
	Left, Right  int64
	Duration     time.Duration
}

// GetAndReset returns the counters and starts a new period.
func (ps *PoseStats) GetAndReset() Snapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	now := ps.now()
	s := Snapshot{
		Datagrams:    ps.datagrams,
		Bytes:        ps.bytes,
		DecodeErrors: ps.decodeErrors,
		Left:         ps.left,
		Right:        ps.right,
		Duration:     now.Sub(ps.lastReset),
	}
	ps.datagrams, ps.bytes, ps.decodeErrors, ps.left, ps.right = 0, 0, 0, 0, 0
	ps.lastReset = now
	return s
}

// LogStats logs per-second rates for the period and resets. Quiet
// periods are not logged.
func (ps *PoseStats) LogStats() {
	s := ps.GetAndReset()
	if s.Datagrams == 0 && s.DecodeErrors == 0 {
		return
	}
	secs := s.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	monitoring.Logf("[udp] pose stats (/sec): %.1f datagrams, %.1f left, %.1f right, %.2f KB; %d decode errors",
		float64(s.Datagrams)/secs, float64(s.Left)/secs, float64(s.Right)/secs,
		float64(s.Bytes)/secs/1024, s.DecodeErrors)
}
