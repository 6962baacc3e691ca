package universe

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/hypebeast/go-osc/osc"

	"github.com/nerrad567/plc-core/internal/dimmer"
)

// OSCSource listens for OSC messages on a UDP address. A message on the
// input path carries either one blob holding the whole frame, or one
// numeric argument per channel: integers are device levels and floats are
// normalized levels.
type OSCSource struct {
	addr string
	path string

	mu   sync.Mutex
	conn net.PacketConn
}

// NewOSCSource returns a source listening on addr for messages to path.
func NewOSCSource(addr, path string) *OSCSource {
	return &OSCSource{addr: addr, path: path}
}

// Open binds the UDP socket and starts serving.
func (s *OSCSource) Open(ctx context.Context) (<-chan []byte, error) {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("osc listen %s: %w", s.addr, err)
	}

	frames := make(chan []byte, 1)
	dispatcher := osc.NewStandardDispatcher()
	err = dispatcher.AddMsgHandler(s.path, func(msg *osc.Message) {
		if frame, ok := frameFromOSC(msg); ok {
			offer(frames, frame)
		}
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("osc handler %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	server := &osc.Server{Dispatcher: dispatcher}
	go func() {
		// Serve returns once the socket is closed.
		_ = server.Serve(conn)
	}()
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return frames, nil
}

// Addr returns the bound address, or nil before Open.
func (s *OSCSource) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Close stops listening. It is safe to call more than once.
func (s *OSCSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func frameFromOSC(msg *osc.Message) ([]byte, bool) {
	if len(msg.Arguments) == 1 {
		if blob, ok := msg.Arguments[0].([]byte); ok {
			return append([]byte(nil), blob...), true
		}
	}

	frame := make([]byte, 0, len(msg.Arguments))
	for _, arg := range msg.Arguments {
		switch v := arg.(type) {
		case int32:
			frame = append(frame, clampDevice(int64(v)))
		case int64:
			frame = append(frame, clampDevice(v))
		case float32:
			frame = append(frame, clampNormalized(float64(v)))
		case float64:
			frame = append(frame, clampNormalized(v))
		default:
			return nil, false
		}
	}
	return frame, len(frame) > 0
}

func clampDevice(v int64) byte {
	return byte(min(max(v, 0), dimmer.MaxDevice))
}

func clampNormalized(v float64) byte {
	return dimmer.ToDevice(min(max(v, 0), 1))
}

// OSCSink sends each output frame as a single blob argument.
type OSCSink struct {
	client *osc.Client
	path   string
}

// NewOSCSink returns a sink sending to host:port at path.
func NewOSCSink(host string, port int, path string) *OSCSink {
	return &OSCSink{client: osc.NewClient(host, port), path: path}
}

// Write sends frame.
func (s *OSCSink) Write(_ context.Context, frame []byte) error {
	return s.client.Send(osc.NewMessage(s.path, frame))
}

// Close is a no-op; the OSC client dials per send.
func (s *OSCSink) Close() error { return nil }
