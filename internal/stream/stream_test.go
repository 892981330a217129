package stream

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
	"github.com/banshee-data/storyboard.xr/internal/hand"
)

func testConfig() Config {
	return Config{MaxClients: 2, ClientBuffer: 16}
}

func placeEvent(frame uint64) gesture.Event {
	return gesture.Event{
		Kind:           gesture.EventPlace,
		Chirality:      hand.Right,
		Frame:          frame,
		TimestampNanos: 1_715_000_000_123_456_789,
		Anchor: hand.Anchor{
			Position:    r3.Vec{X: 0.25, Y: 1.5, Z: -0.75},
			Orientation: quat.Number{Real: 0.5, Imag: 0.5, Jmag: 0.5, Kmag: 0.5},
		},
	}
}

func TestEventStructRoundTrip(t *testing.T) {
	for _, ev := range []gesture.Event{
		placeEvent(42),
		{Kind: gesture.EventLShapeEnded, Chirality: hand.Left, Frame: 7, TimestampNanos: 99},
		gesture.RemoveFrame(5),
	} {
		msg, err := EventToStruct(ev)
		require.NoError(t, err)
		got, err := EventFromStruct(msg)
		require.NoError(t, err)
		if diff := cmp.Diff(ev, got); diff != "" {
			t.Errorf("%s round trip (-want +got):\n%s", ev.Kind, diff)
		}
	}
}

func TestEventFromStructErrors(t *testing.T) {
	bad := map[string]map[string]any{
		"unknown kind":   {"kind": "wave"},
		"bad chirality":  {"kind": "place", "chirality": "both"},
		"bad timestamp":  {"kind": "place", "timestampNanos": "soon"},
		"short position": {"kind": "place", "anchor": map[string]any{"position": []any{1.0, 2.0}}},
		"text in a quat": {"kind": "place", "anchor": map[string]any{"orientation": []any{0.0, 0.0, "x", 1.0}}},
	}
	for name, fields := range bad {
		t.Run(name, func(t *testing.T) {
			msg, err := structpb.NewStruct(fields)
			require.NoError(t, err)
			_, err = EventFromStruct(msg)
			assert.Error(t, err)
		})
	}
}

func TestKindsFromRequest(t *testing.T) {
	req, err := KindsRequest()
	require.NoError(t, err)
	kinds, err := kindsFromRequest(req)
	require.NoError(t, err)
	assert.Nil(t, kinds, "empty filter means every kind")

	req, err = KindsRequest(gesture.EventPlace, gesture.EventRemoveFrame)
	require.NoError(t, err)
	kinds, err = kindsFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, map[gesture.EventKind]bool{gesture.EventPlace: true, gesture.EventRemoveFrame: true}, kinds)

	req, err = KindsRequest("wave")
	require.NoError(t, err)
	_, err = kindsFromRequest(req)
	assert.Error(t, err)
}

func TestPublisher_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := NewPublisher(Config{ListenAddr: "127.0.0.1:0", StatsInterval: time.Hour})
	require.NoError(t, pub.Start())
	assert.NotNil(t, pub.Addr())
	assert.True(t, pub.Stats().Running)
	assert.Error(t, pub.Start(), "second start")

	pub.Stop()
	pub.Stop()
	assert.False(t, pub.Stats().Running)
}

func TestPublisher_EmitNotRunning(t *testing.T) {
	pub := NewPublisher(testConfig())
	pub.Emit(placeEvent(1))
	assert.Zero(t, pub.Stats().EventCount)
	assert.Nil(t, pub.Addr())
}

func TestPublisher_FanoutAndDrops(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := NewPublisher(Config{MaxClients: 2, ClientBuffer: 1})
	require.NoError(t, pub.Serve(bufconn.Listen(1<<16)))
	defer pub.Stop()

	all, err := pub.addClient(nil)
	require.NoError(t, err)
	placesOnly, err := pub.addClient(map[gesture.EventKind]bool{gesture.EventPlace: true})
	require.NoError(t, err)
	_, err = pub.addClient(nil)
	assert.Error(t, err, "client limit")

	pub.Emit(gesture.Event{Kind: gesture.EventCouldPlace, Frame: 1})
	pub.Emit(placeEvent(2))
	pub.Emit(placeEvent(3))

	// all: buffer 1 keeps could_place and drops both places.
	// placesOnly: keeps frame 2 and drops frame 3.
	require.Eventually(t, func() bool { return pub.Stats().Dropped == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(3), pub.Stats().EventCount)
	assert.Equal(t, gesture.EventCouldPlace, (<-all.eventCh).Kind)
	assert.Equal(t, uint64(2), (<-placesOnly.eventCh).Frame)

	pub.removeClient(all.id)
	pub.removeClient(all.id)
	assert.Equal(t, int32(1), pub.Stats().ClientCount)
	_, err = pub.addClient(nil)
	assert.NoError(t, err)
}

func startTestService(t *testing.T, cfg Config, onRemove func()) (*Publisher, *Client) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	pub := NewPublisher(cfg)
	RegisterService(pub.GRPCServer(), NewServer(pub, onRemove))
	require.NoError(t, pub.Serve(lis))

	client, conn, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		pub.Stop()
	})
	return pub, client
}

func TestSubscribe_FiltersKinds(t *testing.T) {
	pub, client := startTestService(t, testConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := client.Subscribe(ctx, gesture.EventPlace)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return pub.Stats().ClientCount == 1 }, time.Second, 5*time.Millisecond)

	pub.Emit(gesture.Event{Kind: gesture.EventCouldPlace, Frame: 1})
	want := placeEvent(2)
	pub.Emit(want)

	got, err := sub.Recv()
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribe_AllKindsInOrder(t *testing.T) {
	pub, client := startTestService(t, testConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := client.Subscribe(ctx)
	require.NoError(t, err)

	kinds := []gesture.EventKind{gesture.EventCouldPlace, gesture.EventPlace, gesture.EventLShapeEnded}
	for i, k := range kinds {
		pub.Emit(gesture.Event{Kind: k, Chirality: hand.Left, Frame: uint64(i + 1)})
	}
	for i, k := range kinds {
		got, err := sub.Recv()
		require.NoError(t, err)
		assert.Equal(t, k, got.Kind)
		assert.Equal(t, uint64(i+1), got.Frame)
	}
}

func TestSubscribe_Rejections(t *testing.T) {
	_, client := startTestService(t, Config{MaxClients: 1, ClientBuffer: 4}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := client.Subscribe(ctx, "wave")
	require.NoError(t, err)
	_, err = sub.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	first, err := client.Subscribe(ctx)
	require.NoError(t, err)
	second, err := client.Subscribe(ctx)
	require.NoError(t, err)
	_, err = second.Recv()
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	_ = first
}

func TestSubscribe_EndsOnStop(t *testing.T) {
	pub, client := startTestService(t, testConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := client.Subscribe(ctx)
	require.NoError(t, err)
	pub.Stop()
	_, err = sub.Recv()
	assert.Error(t, err)
}

func TestRemoveFrame(t *testing.T) {
	var calls atomic.Int32
	_, client := startTestService(t, testConfig(), func() { calls.Add(1) })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.RemoveFrame(ctx))
	require.NoError(t, client.RemoveFrame(ctx))
	assert.Equal(t, int32(2), calls.Load())
}

func TestRemoveFrame_Unwired(t *testing.T) {
	_, client := startTestService(t, testConfig(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.RemoveFrame(ctx)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
