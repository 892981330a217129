// Package stream serves gesture events to UI clients over gRPC.
//
// The service is storyboard.v1.GestureEvents. Messages are protobuf
// well-known types (structpb.Struct and emptypb.Empty), so clients in any
// language can subscribe without generated stubs.
package stream

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
)

// Config holds configuration for the event publisher.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50051")
	ListenAddr string

	// MaxClients is the maximum number of concurrent subscribers
	MaxClients int

	// ClientBuffer is each subscriber's queue length. Events beyond it are
	// dropped for that subscriber only.
	ClientBuffer int

	// StatsInterval is how often delivery stats are logged (0 disables)
	StatsInterval time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    "localhost:50051",
		MaxClients:    5,
		ClientBuffer:  64,
		StatsInterval: time.Minute,
	}
}

// Publisher owns the gRPC server and fans events out to subscribers. It
// implements gesture.Sink.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	// Event broadcasting
	eventChan chan gesture.Event
	clients   map[uint64]*subscriber
	clientsMu sync.RWMutex
	nextID    atomic.Uint64

	// Stats
	eventCount  atomic.Uint64
	clientCount atomic.Int32
	dropped     atomic.Uint64

	// Lifecycle
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// subscriber is one connected Subscribe call.
type subscriber struct {
	id      uint64
	kinds   map[gesture.EventKind]bool
	eventCh chan gesture.Event
	doneCh  chan struct{}
}

func (s *subscriber) wants(k gesture.EventKind) bool {
	return s.kinds == nil || s.kinds[k]
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	return &Publisher{
		config:    cfg,
		eventChan: make(chan gesture.Event, 256),
		clients:   make(map[uint64]*subscriber),
		stopCh:    make(chan struct{}),
		server:    grpc.NewServer(),
	}
}

// GRPCServer returns the underlying gRPC server for service registration.
func (p *Publisher) GRPCServer() *grpc.Server {
	return p.server
}

// Start binds the configured address and serves in the background.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve starts broadcasting and serves gRPC on lis in the background.
// Register services on GRPCServer before calling it.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis

	p.wg.Add(1)
	go p.broadcastLoop()

	if p.config.StatsInterval > 0 {
		p.wg.Add(1)
		go p.statsLoop()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Printf("[gRPC] serving gesture events on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			log.Printf("[gRPC] server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop ends every subscription and stops the server.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)

	p.clientsMu.Lock()
	for id, c := range p.clients {
		close(c.doneCh)
		delete(p.clients, id)
	}
	p.clientCount.Store(0)
	p.clientsMu.Unlock()

	p.server.Stop()
	p.wg.Wait()
	log.Printf("[gRPC] server stopped")
}

// Emit queues ev for broadcast without blocking. Events emitted while the
// publisher is not running are discarded.
func (p *Publisher) Emit(ev gesture.Event) {
	if !p.running.Load() {
		return
	}
	select {
	case p.eventChan <- ev:
		p.eventCount.Add(1)
	default:
		p.dropped.Add(1)
	}
}

// broadcastLoop distributes events to all connected subscribers.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case ev := <-p.eventChan:
			p.clientsMu.RLock()
			for _, c := range p.clients {
				if !c.wants(ev.Kind) {
					continue
				}
				select {
				case c.eventCh <- ev:
				default:
					// Slow subscriber; drop for this one only.
					p.dropped.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) statsLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.StatsInterval)
	defer ticker.Stop()
	var lastEvents uint64
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			events := p.eventCount.Load()
			if events == lastEvents {
				continue
			}
			log.Printf("[gRPC] Stats: events=%d dropped=%d clients=%d",
				events-lastEvents, p.dropped.Load(), p.clientCount.Load())
			lastEvents = events
		}
	}
}

// addClient registers a subscriber, enforcing MaxClients.
func (p *Publisher) addClient(kinds map[gesture.EventKind]bool) (*subscriber, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if !p.running.Load() {
		return nil, fmt.Errorf("publisher not running")
	}
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		return nil, fmt.Errorf("too many subscribers (max %d)", p.config.MaxClients)
	}
	c := &subscriber{
		id:      p.nextID.Add(1),
		kinds:   kinds,
		eventCh: make(chan gesture.Event, p.config.ClientBuffer),
		doneCh:  make(chan struct{}),
	}
	p.clients[c.id] = c
	p.clientCount.Add(1)
	log.Printf("[gRPC] Client connected: %d (total: %d)", c.id, p.clientCount.Load())
	return c, nil
}

// removeClient unregisters a subscriber.
func (p *Publisher) removeClient(id uint64) {
	p.clientsMu.Lock()
	c, ok := p.clients[id]
	if ok {
		close(c.doneCh)
		delete(p.clients, id)
	}
	p.clientsMu.Unlock()
	if ok {
		p.clientCount.Add(-1)
		log.Printf("[gRPC] Client disconnected: %d (remaining: %d)", id, p.clientCount.Load())
	}
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		EventCount:  p.eventCount.Load(),
		Dropped:     p.dropped.Load(),
		ClientCount: p.clientCount.Load(),
		Running:     p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	EventCount  uint64 `json:"event_count"`
	Dropped     uint64 `json:"dropped"`
	ClientCount int32  `json:"client_count"`
	Running     bool   `json:"running"`
}
