package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/storyboard.xr/internal/gesture"
)

// Client calls storyboard.v1.GestureEvents.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to addr without transport security; the service only
// listens on trusted local networks.
func Dial(addr string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create client: %w", err)
	}
	return NewClient(conn), conn, nil
}

// Subscription is an open Subscribe stream.
type Subscription struct {
	stream grpc.ClientStream
}

// Subscribe opens an event stream. It returns once the server has
// registered the subscription, so every event emitted afterwards is seen.
// A rejected subscription surfaces as an error from the first Recv.
func (c *Client) Subscribe(ctx context.Context, kinds ...gesture.EventKind) (*Subscription, error) {
	req, err := KindsRequest(kinds...)
	if err != nil {
		return nil, err
	}
	cs, err := c.conn.NewStream(ctx, subscribeStreamDesc, subscribeMethod)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	if _, err := cs.Header(); err != nil {
		return nil, err
	}
	return &Subscription{stream: cs}, nil
}

// Recv blocks for the next event. It returns io.EOF when the server ends
// the stream.
func (s *Subscription) Recv() (gesture.Event, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return gesture.Event{}, io.EOF
		}
		return gesture.Event{}, err
	}
	return EventFromStruct(msg)
}

// RemoveFrame asks the service to tear down the preview.
func (c *Client) RemoveFrame(ctx context.Context) error {
	return c.conn.Invoke(ctx, removeFrameMethod, &emptypb.Empty{}, new(emptypb.Empty))
}
