package codec

import (
	"testing"
)

type payload struct {
	N    int
	Name string
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := GetCodec(CodecTypeJSON)

	data, err := c.Encode(&payload{N: 5, Name: "echo"})
	if err != nil {
		t.Fatal(err)
	}

	var got payload
	if err := c.Decode(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.N != 5 || got.Name != "echo" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestJSONCodecDecodeGarbage(t *testing.T) {
	c := GetCodec(CodecTypeJSON)
	var got payload
	if err := c.Decode([]byte("not-json"), &got); err == nil {
		t.Fatal("expect decode error")
	}
}
