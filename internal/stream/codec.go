package stream

import (
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/hand"
)

// EventToStruct encodes an event as a protobuf Struct. Timestamps travel
// as decimal strings because Struct numbers are doubles.
func EventToStruct(ev gesture.Event) (*structpb.Struct, error) {
	p := ev.Anchor.Position
	q := ev.Anchor.Orientation
	return structpb.NewStruct(map[string]any{
		"kind":           string(ev.Kind),
		"chirality":      ev.Chirality.String(),
		"frame":          float64(ev.Frame),
		"timestampNanos": strconv.FormatInt(ev.TimestampNanos, 10),
		"anchor": map[string]any{
			"position":    []any{p.X, p.Y, p.Z},
			"orientation": []any{q.Imag, q.Jmag, q.Kmag, q.Real},
		},
	})
}

// EventFromStruct decodes a Struct produced by EventToStruct.
func EventFromStruct(s *structpb.Struct) (gesture.Event, error) {
	var ev gesture.Event
	fields := s.GetFields()

	kind, err := gesture.ParseEventKind(fields["kind"].GetStringValue())
	if err != nil {
		return ev, err
	}
	ev.Kind = kind
	if err := ev.Chirality.UnmarshalText([]byte(fields["chirality"].GetStringValue())); err != nil {
		return ev, err
	}
	ev.Frame = uint64(fields["frame"].GetNumberValue())
	if ts := fields["timestampNanos"].GetStringValue(); ts != "" {
		ev.TimestampNanos, err = strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return ev, fmt.Errorf("bad timestampNanos: %w", err)
		}
	}

	anchor := fields["anchor"].GetStructValue().GetFields()
	pos, err := numbers(anchor["position"], 3)
	if err != nil {
		return ev, fmt.Errorf("anchor position: %w", err)
	}
	rot, err := numbers(anchor["orientation"], 4)
	if err != nil {
		return ev, fmt.Errorf("anchor orientation: %w", err)
	}
	ev.Anchor = hand.Anchor{
		Position:    r3.Vec{X: pos[0], Y: pos[1], Z: pos[2]},
		Orientation: quat.Number{Imag: rot[0], Jmag: rot[1], Kmag: rot[2], Real: rot[3]},
	}
	return ev, nil
}

// numbers reads a fixed-length numeric list. A missing value yields zeros.
func numbers(v *structpb.Value, n int) ([]float64, error) {
	out := make([]float64, n)
	if v == nil {
		return out, nil
	}
	list := v.GetListValue().GetValues()
	if len(list) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(list))
	}
	for i, item := range list {
		if _, ok := item.GetKind().(*structpb.Value_NumberValue); !ok {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		out[i] = item.GetNumberValue()
	}
	return out, nil
}

// KindsRequest builds a Subscribe request. No kinds means every kind.
func KindsRequest(kinds ...gesture.EventKind) (*structpb.Struct, error) {
	list := make([]any, len(kinds))
	for i, k := range kinds {
		list[i] = string(k)
	}
	return structpb.NewStruct(map[string]any{"kinds": list})
}

// kindsFromRequest parses the kinds filter of a Subscribe request. A nil
// result means every kind.
func kindsFromRequest(req *structpb.Struct) (map[gesture.EventKind]bool, error) {
	values := req.GetFields()["kinds"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, nil
	}
	kinds := make(map[gesture.EventKind]bool, len(values))
	for _, v := range values {
		k, err := gesture.ParseEventKind(v.GetStringValue())
		if err != nil {
			return nil, err
		}
		kinds[k] = true
	}
	return kinds, nil
}
