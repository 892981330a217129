// Command event-tail prints the live gesture event stream of a running
// storyboard service.
//
// Usage:
//
//	go run ./cmd/event-tail [flags]
//
// Flags:
//
//	-addr      gRPC address of the service (default: localhost:50051)
//	-kinds     Comma-separated event kinds to show (default: all)
//	-remove    Send a remove_frame request and exit
//	-json      Print events as JSON lines
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/stream"
)

func main() {
	addr := flag.String("addr", stream.DefaultConfig().ListenAddr, "gRPC address of the storyboard service")
	kindsFlag := flag.String("kinds", "", "Comma-separated event kinds to show (empty for all)")
	remove := flag.Bool("remove", false, "Send a remove_frame request and exit")
	asJSON := flag.Bool("json", false, "Print events as JSON lines")
	flag.Parse()

	kinds, err := parseKinds(*kindsFlag)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	client, conn, err := stream.Dial(*addr)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *remove {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.RemoveFrame(rctx); err != nil {
			log.Fatalf("RemoveFrame failed: %v", err)
		}
		log.Printf("remove_frame sent")
		return
	}

	if err := tail(ctx, client, kinds, os.Stdout, *asJSON); err != nil {
		log.Fatalf("Stream failed: %v", err)
	}
}

// parseKinds parses a comma-separated kind list. Empty selects every kind.
func parseKinds(s string) ([]gesture.EventKind, error) {
	var kinds []gesture.EventKind
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := gesture.ParseEventKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// tail prints events until the stream ends or ctx is cancelled.
func tail(ctx context.Context, client *stream.Client, kinds []gesture.EventKind, out io.Writer, asJSON bool) error {
	sub, err := client.Subscribe(ctx, kinds...)
	if err != nil {
		return err
	}
	log.Printf("subscribed to gesture events")

	enc := json.NewEncoder(out)
	for {
		ev, err := sub.Recv()
		if errors.Is(err, io.EOF) {
			log.Printf("stream closed")
			return nil
		}
		if err != nil {
			return err
		}
		if asJSON {
			if err := enc.Encode(eventLine(ev)); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(out, formatEvent(ev))
	}
}

type jsonEvent struct {
	Kind           gesture.EventKind `json:"kind"`
	Chirality      string            `json:"chirality,omitempty"`
	Frame          uint64            `json:"frame"`
	TimestampNanos int64             `json:"timestamp_nanos"`
	Position       [3]float64        `json:"position"`
}

func eventLine(ev gesture.Event) jsonEvent {
	p := ev.Anchor.Position
	return jsonEvent{
		Kind:           ev.Kind,
		Chirality:      ev.Chirality.String(),
		Frame:          ev.Frame,
		TimestampNanos: ev.TimestampNanos,
		Position:       [3]float64{p.X, p.Y, p.Z},
	}
}

func formatEvent(ev gesture.Event) string {
	ts := time.Unix(0, ev.TimestampNanos).UTC().Format("15:04:05.000")
	p := ev.Anchor.Position
	if ev.Kind == gesture.EventRemoveFrame {
		return fmt.Sprintf("%s  %-13s", ts, ev.Kind)
	}
	return fmt.Sprintf("%s  %-13s %-5s frame=%d  at (%.3f, %.3f, %.3f)",
		ts, ev.Kind, ev.Chirality, ev.Frame, p.X, p.Y, p.Z)
}
