package tracking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/hand"
)

// Datagram is one captured UDP payload with its capture time.
type Datagram struct {
	Timestamp time.Time
	Payload   []byte
}

// ReadPCAP extracts UDP payloads sent to port from a pcap stream. A port
// of 0 accepts every UDP packet.
func ReadPCAP(r io.Reader, port int) ([]Datagram, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	source := gopacket.NewPacketSource(reader, reader.LinkType())

	var out []Datagram
	for {
		packet, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("failed to read packet %d: %w", len(out)+1, err)
		}
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if port > 0 && int(udp.DstPort) != port {
			continue
		}
		out = append(out, Datagram{
			Timestamp: packet.Metadata().Timestamp,
			Payload:   append([]byte(nil), udp.Payload...),
		})
	}
}

// ReadPCAPFile is ReadPCAP on a file.
func ReadPCAPFile(path string, port int) ([]Datagram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	defer f.Close()
	return ReadPCAP(f, port)
}

// Replayer drives an engine from recorded datagrams, evaluating frames on
// capture-time boundaries instead of the wall clock.
type Replayer struct {
	Engine    *gesture.Engine
	Interval  time.Duration
	Observers []Observer
	Stats     StatsRecorder
}

// ReplaySummary reports what a replay saw.
type ReplaySummary struct {
	Datagrams    int
	DecodeErrors int
	Frames       uint64
	Events       map[gesture.EventKind]int
	Duration     time.Duration
}

// Replay feeds datagrams in order. Before each datagram is stored, every
// frame boundary up to its capture time is evaluated; one final frame is
// evaluated after the last datagram.
func (r *Replayer) Replay(ctx context.Context, datagrams []Datagram) (ReplaySummary, error) {
	sum := ReplaySummary{Events: make(map[gesture.EventKind]int)}
	if len(datagrams) == 0 {
		return sum, nil
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second / 90
	}
	stats := r.Stats
	if stats == nil {
		stats = noopStats{}
	}

	var slots PoseSlots
	step := func() {
		res := r.Engine.Evaluate(slots.Latest())
		sum.Frames++
		for _, ev := range res.Events {
			sum.Events[ev.Kind]++
		}
		for _, o := range r.Observers {
			o.ObserveFrame(res)
		}
	}

	start := datagrams[0].Timestamp
	next := start.Add(interval)
	for _, d := range datagrams {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		for !d.Timestamp.Before(next) {
			step()
			next = next.Add(interval)
		}
		sum.Datagrams++
		stats.AddDatagram(len(d.Payload))
		p, err := hand.DecodePose(d.Payload)
		if err != nil {
			sum.DecodeErrors++
			stats.AddDecodeError()
			continue
		}
		slots.Store(p, d.Timestamp)
		stats.AddPose(p.Chirality == hand.Left)
	}
	step()
	sum.Duration = datagrams[len(datagrams)-1].Timestamp.Sub(start)
	return sum, nil
}
