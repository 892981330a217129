package tracking

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/storyboard.xr/internal/hand"
	"github.com/banshee-data/storyboard.xr/internal/monitoring"
	"github.com/banshee-data/storyboard.xr/internal/timeutil"
)

var udpLogf = monitoring.Component("udp")

// DefaultAddress is where the headset bridge sends pose datagrams.
const DefaultAddress = ":5560"

// maxDatagram bounds one JSON pose datagram.
const maxDatagram = 8192

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       StatsRecorder
	Slots       *PoseSlots
	Clock       timeutil.Clock
}

// UDPListener decodes pose datagrams into PoseSlots.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	stats       StatsRecorder
	slots       *PoseSlots
	clock       timeutil.Clock

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewUDPListener creates a listener. It does not bind until Listen or
// Start is called.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	stats := config.Stats
	if stats == nil {
		stats = noopStats{}
	}
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	address := config.Address
	if address == "" {
		address = DefaultAddress
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	slots := config.Slots
	if slots == nil {
		slots = &PoseSlots{}
	}
	return &UDPListener{
		address:     address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		slots:       slots,
		clock:       clock,
	}
}

// Slots returns the slots the listener writes to.
func (l *UDPListener) Slots() *PoseSlots { return l.slots }

// Listen binds the socket. Calling it again is a no-op.
func (l *UDPListener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return nil
	}
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			udpLogf("Warning: failed to set receive buffer to %d: %v", l.rcvBuf, err)
		}
	}
	l.conn = conn
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *UDPListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start binds if needed and decodes datagrams until ctx is cancelled.
// The socket is closed on return.
func (l *UDPListener) Start(ctx context.Context) error {
	if err := l.Listen(); err != nil {
		return err
	}
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		conn.Close()
	}()

	udpLogf("listening for poses on %s", conn.LocalAddr())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.logStatsLoop(ctx)
	}()
	defer wg.Wait()

	buffer := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			udpLogf("listener stopping: %v", ctx.Err())
			return ctx.Err()
		}
		// The deadline lets the loop observe cancellation.
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			udpLogf("read error: %v", err)
			continue
		}
		if err := l.HandleDatagram(buffer[:n]); err != nil {
			udpLogf("bad datagram from %v: %v", addr, err)
		}
	}
}

// HandleDatagram decodes one datagram and stores the pose.
func (l *UDPListener) HandleDatagram(b []byte) error {
	l.stats.AddDatagram(len(b))
	p, err := hand.DecodePose(b)
	if err != nil {
		l.stats.AddDecodeError()
		return err
	}
	l.slots.Store(p, l.clock.Now())
	l.stats.AddPose(p.Chirality == hand.Left)
	return nil
}

func (l *UDPListener) logStatsLoop(ctx context.Context) {
	ticker := l.clock.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.stats.LogStats()
		}
	}
}
