package universe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
)

func openOSCSource(t *testing.T) (*OSCSource, <-chan []byte, *osc.Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	source := NewOSCSource("127.0.0.1:0", "/plc/input")
	frames, err := source.Open(ctx)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { source.Close() })

	addr := source.Addr().(*net.UDPAddr)
	return source, frames, osc.NewClient("127.0.0.1", addr.Port)
}

func receiveFrame(t *testing.T, frames <-chan []byte) []byte {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OSC frame")
		return nil
	}
}

func TestOSCSource_Blob(t *testing.T) {
	_, frames, client := openOSCSource(t)

	if err := client.Send(osc.NewMessage("/plc/input", []byte{10, 20, 30})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := receiveFrame(t, frames); string(got) != string([]byte{10, 20, 30}) {
		t.Errorf("frame = %v", got)
	}
}

func TestOSCSource_NumericArguments(t *testing.T) {
	_, frames, client := openOSCSource(t)

	msg := osc.NewMessage("/plc/input")
	msg.Append(int32(300))
	msg.Append(float32(0.5))
	msg.Append(int32(-4))
	if err := client.Send(msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := receiveFrame(t, frames); string(got) != string([]byte{255, 128, 0}) {
		t.Errorf("frame = %v, want [255 128 0]", got)
	}
}

func TestOSCSource_CloseIsIdempotent(t *testing.T) {
	source, _, _ := openOSCSource(t)
	if err := source.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := source.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if source.Addr() != nil {
		t.Error("Addr() after Close should be nil")
	}
}

func TestFrameFromOSC_Rejects(t *testing.T) {
	tests := []struct {
		name string
		args []interface{}
	}{
		{"empty", nil},
		{"string", []interface{}{"full"}},
		{"mixed", []interface{}{int32(1), true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := frameFromOSC(osc.NewMessage("/plc/input", tt.args...)); ok {
				t.Error("frameFromOSC() accepted the message")
			}
		})
	}
}

func TestOSCSink_SendsBlob(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	port := conn.LocalAddr().(*net.UDPAddr).Port
	sink := NewOSCSink("127.0.0.1", port, "/plc/output")
	if err := sink.Write(context.Background(), []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	buf := make([]byte, 1024)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	packet, err := osc.ParsePacket(string(buf[:n]))
	if err != nil {
		t.Fatalf("ParsePacket() error = %v", err)
	}
	msg, ok := packet.(*osc.Message)
	if !ok {
		t.Fatalf("packet = %T, want *osc.Message", packet)
	}
	if msg.Address != "/plc/output" || len(msg.Arguments) != 1 {
		t.Fatalf("message = %v", msg)
	}
	if blob, _ := msg.Arguments[0].([]byte); string(blob) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("blob = %v", msg.Arguments[0])
	}
}
