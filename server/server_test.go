package server

import (
	"context"
	"net"
	"testing"
	"time"

	"verbwire/message"
	"verbwire/wire"
)

type Num struct {
	N int
}

// roundTrip writes one framed request envelope on conn and reads back the
// framed response envelope, exercising the raw wire protocol.
func roundTrip(t *testing.T, conn net.Conn, req *message.Request) *message.Response {
	t.Helper()
	raw, err := req.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if err := wire.WriteFrame(conn, raw); err != nil {
		t.Fatal(err)
	}
	frame, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatal(err)
	}
	resp := &message.Response{}
	if err := resp.UnmarshalBinary(frame); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestServeDispatch(t *testing.T) {
	svr := NewServer(nil)
	Handle(svr, "testnet", "double", func(ctx context.Context, req Num) (Num, error) {
		return Num{N: req.N * 2}, nil
	})
	go svr.Serve("tcp", "127.0.0.1:9201")
	defer svr.Shutdown(time.Second)
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", "127.0.0.1:9201")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, &message.Request{
		ProtoVersion: message.ProtoVersion,
		Netname:      "testnet",
		Verb:         "double",
		Payload:      []byte(`{"N":21}`),
	})
	if resp.Kind != message.KindOK {
		t.Fatalf("expect Ok, got %s (%s)", resp.Kind, resp.Body)
	}
	if string(resp.Body) != `{"N":42}` {
		t.Fatalf("expect doubled value, got %s", resp.Body)
	}

	// Same connection serves a second request.
	resp = roundTrip(t, conn, &message.Request{
		ProtoVersion: message.ProtoVersion,
		Netname:      "testnet",
		Verb:         "double",
		Payload:      []byte(`{"N":1}`),
	})
	if string(resp.Body) != `{"N":2}` {
		t.Fatalf("expect {\"N\":2}, got %s", resp.Body)
	}
}

func TestNoVerbResponse(t *testing.T) {
	svr := NewServer(nil)
	go svr.Serve("tcp", "127.0.0.1:9202")
	defer svr.Shutdown(time.Second)
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", "127.0.0.1:9202")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, &message.Request{
		ProtoVersion: message.ProtoVersion,
		Netname:      "nowhere",
		Verb:         "missing",
	})
	if resp.Kind != message.KindNoVerb {
		t.Fatalf("expect NoVerb, got %s", resp.Kind)
	}
}

func TestHandlerErrorResponse(t *testing.T) {
	svr := NewServer(nil)
	svr.HandleFunc("testnet", "boom", func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, context.DeadlineExceeded
	})
	go svr.Serve("tcp", "127.0.0.1:9203")
	defer svr.Shutdown(time.Second)
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", "127.0.0.1:9203")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	resp := roundTrip(t, conn, &message.Request{
		ProtoVersion: message.ProtoVersion,
		Netname:      "testnet",
		Verb:         "boom",
	})
	if resp.Kind != message.KindError {
		t.Fatalf("expect Err, got %s", resp.Kind)
	}
	if string(resp.Body) != context.DeadlineExceeded.Error() {
		t.Fatalf("expect the handler error message, got %s", resp.Body)
	}
}

func TestVersionMismatchDropsConn(t *testing.T) {
	svr := NewServer(nil)
	go svr.Serve("tcp", "127.0.0.1:9204")
	defer svr.Shutdown(time.Second)
	time.Sleep(100 * time.Millisecond)

	conn, err := net.Dial("tcp", "127.0.0.1:9204")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	raw, err := (&message.Request{ProtoVersion: 99, Netname: "n", Verb: "v"}).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if err := wire.WriteFrame(conn, raw); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := wire.ReadFrame(conn); err == nil {
		t.Fatal("expect the server to drop the connection")
	}
}

func TestGracefulShutdown(t *testing.T) {
	svr := NewServer(nil)
	go svr.Serve("tcp", "127.0.0.1:9205")
	time.Sleep(100 * time.Millisecond)

	if err := svr.Shutdown(time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := net.Dial("tcp", "127.0.0.1:9205"); err == nil {
		t.Fatal("expect dial to fail after shutdown")
	}
}
