package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"stockinsights/internal/dashboard"
)

// Frame kinds sent on a StreamEvents stream.
const (
	FrameSnapshot = "snapshot"
	FrameEvent    = "event"
)

// Frame is one message on the event stream: a full snapshot first, then one
// frame per applied action.
type Frame struct {
	Kind     string              `json:"kind"`
	Seq      uint64              `json:"seq"`
	Snapshot *dashboard.Snapshot `json:"snapshot,omitempty"`
	Action   *dashboard.Action   `json:"action,omitempty"`
}

// Streamer is implemented by the StreamEvents service.
type Streamer interface {
	StreamEvents(req *structpb.Struct, stream grpc.ServerStream) error
}

// StreamMethod is the full gRPC method name of the event stream.
const StreamMethod = "/stockinsights.v1.Dashboard/StreamEvents"

// serviceDesc describes the Dashboard service. Messages are
// google.protobuf.Struct, so no generated code is needed.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "stockinsights.v1.Dashboard",
	HandlerType: (*Streamer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{{
		StreamName:    "StreamEvents",
		Handler:       streamEventsHandler,
		ServerStreams: true,
	}},
	Metadata: "stockinsights/v1/dashboard.proto",
}

func streamEventsHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(Streamer).StreamEvents(req, stream)
}

// Server implements the StreamEvents gRPC endpoint.
type Server struct {
	sessions *Manager
	buffer   int
	log      *slog.Logger
}

var _ Streamer = (*Server)(nil)

// NewServer creates a gRPC server backed by the session manager. buffer is
// the per-subscriber event buffer.
func NewServer(sessions *Manager, buffer int, log *slog.Logger) *Server {
	if buffer <= 0 {
		buffer = 64
	}
	return &Server{sessions: sessions, buffer: buffer, log: log.With("component", "grpc")}
}

// RegisterGRPC registers the server on the given gRPC server instance.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// StreamEvents sends a snapshot of the requested session, then streams its
// events as they are applied. The stream ends when the client disconnects
// or the session is closed.
func (s *Server) StreamEvents(req *structpb.Struct, stream grpc.ServerStream) error {
	id := req.GetFields()["session_id"].GetStringValue()
	sess, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, dashboard.ErrUnknownSession) {
			return status.Error(codes.NotFound, err.Error())
		}
		return err
	}

	// Subscribe before taking the snapshot so no event falls in between.
	subID, ch := sess.Subscribe(s.buffer)
	defer sess.Unsubscribe(subID)

	snap := sess.State()
	if err := sendFrame(stream, Frame{Kind: FrameSnapshot, Seq: snap.Seq, Snapshot: &snap}); err != nil {
		return err
	}

	s.log.Info("grpc client subscribed", "session", id, "subID", subID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("grpc client disconnected", "session", id, "subID", subID)
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if evt.Seq <= snap.Seq {
				continue
			}
			action := evt.Action
			if err := sendFrame(stream, Frame{Kind: FrameEvent, Seq: evt.Seq, Action: &action}); err != nil {
				return err
			}
		}
	}
}

func sendFrame(stream grpc.ServerStream, f Frame) error {
	msg, err := encodeFrame(f)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	return stream.SendMsg(msg)
}

func encodeFrame(f Frame) (*structpb.Struct, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	msg := new(structpb.Struct)
	if err := protojson.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("converting frame: %w", err)
	}
	return msg, nil
}

func decodeFrame(msg *structpb.Struct) (Frame, error) {
	b, err := protojson.Marshal(msg)
	if err != nil {
		return Frame{}, fmt.Errorf("converting frame: %w", err)
	}
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	return f, nil
}
