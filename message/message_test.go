package message

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestRequestWireLayout(t *testing.T) {
	req := &Request{
		ProtoVersion: ProtoVersion,
		Netname:      "testnet",
		Verb:         "echo",
		Payload:      []byte(`{"n":5}`),
	}

	raw, err := req.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	// version byte, then uint16-prefixed netname
	if raw[0] != ProtoVersion {
		t.Fatalf("expect version %d, got %d", ProtoVersion, raw[0])
	}
	if n := binary.BigEndian.Uint16(raw[1:3]); n != uint16(len("testnet")) {
		t.Fatalf("expect netname length %d, got %d", len("testnet"), n)
	}
	if string(raw[3:10]) != "testnet" {
		t.Fatalf("netname bytes wrong: %q", raw[3:10])
	}

	decoded := &Request{}
	if err := decoded.UnmarshalBinary(raw); err != nil {
		t.Fatal(err)
	}
	if decoded.Netname != req.Netname || decoded.Verb != req.Verb {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if !bytes.Equal(decoded.Payload, req.Payload) {
		t.Fatalf("payload mismatch: %q", decoded.Payload)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp := &Response{Kind: KindError, Body: []byte("out of gas")}

	raw, err := resp.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	decoded := &Response{}
	if err := decoded.UnmarshalBinary(raw); err != nil {
		t.Fatal(err)
	}
	if decoded.Kind != KindError || string(decoded.Body) != "out of gas" {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	req := &Request{ProtoVersion: ProtoVersion, Netname: "net", Verb: "v", Payload: []byte("xyz")}
	raw, err := req.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	// Every strict prefix must fail, not panic or succeed partially.
	for i := 0; i < len(raw); i++ {
		if err := new(Request).UnmarshalBinary(raw[:i]); err == nil {
			t.Fatalf("truncation at %d bytes should fail", i)
		}
	}
}

func TestUnmarshalLyingLengthPrefix(t *testing.T) {
	resp := &Response{Kind: KindOK, Body: []byte("body")}
	raw, _ := resp.MarshalBinary()

	// Inflate the body length prefix past the available data.
	binary.BigEndian.PutUint32(raw[2+len(KindOK):], 1<<30)
	if err := new(Response).UnmarshalBinary(raw); err == nil {
		t.Fatal("oversized length prefix should fail")
	}
}
