// Package message defines the request and response envelopes exchanged between
// client and server, and their binary wire layout.
//
// Every envelope travels inside one wire frame (see package wire). Inside the
// envelope, each variable-length field carries its own length prefix:
//
//	Request:  ┌───────┬─────────┬────────────┬─────────┬──────────┬─────────┬─────────────┐
//	          │ver(1) │ nlen(2) │ netname    │ vlen(2) │ verb     │ plen(4) │ payload     │
//	          └───────┴─────────┴────────────┴─────────┴──────────┴─────────┴─────────────┘
//
//	Response: ┌─────────┬──────────┬─────────┬─────────────┐
//	          │ klen(2) │ kind     │ blen(4) │ body        │
//	          └─────────┴──────────┴─────────┴─────────────┘
//
// All integers are big-endian. String lengths are uint16, byte-slice lengths
// are uint32.
package message

import (
	"encoding/binary"
	"fmt"
)

// ProtoVersion is the wire protocol version carried in every request.
const ProtoVersion byte = 1

// Response kind tags. KindOK and KindNoVerb are the only kinds with protocol
// meaning; every other kind is an application-level error whose message is in
// the response body.
const (
	KindOK     = "Ok"
	KindNoVerb = "NoVerb"
	KindError  = "Err"
)

// Request is the envelope for a single verb invocation.
//
//   - Netname scopes which set of verbs is reachable on the server.
//   - Verb names the procedure within that netname.
//   - Payload is the caller's request value, already encoded by the codec layer.
type Request struct {
	ProtoVersion byte
	Netname      string
	Verb         string
	Payload      []byte
}

// Response is the envelope for the server's answer.
//
//   - Kind == "Ok": Body is the encoded result value.
//   - Kind == "NoVerb": no handler for the requested netname/verb; Body is empty.
//   - any other Kind: the handler failed; Body is a human-readable message.
type Response struct {
	Kind string
	Body []byte
}

// MarshalBinary encodes the request envelope into its wire layout.
func (m *Request) MarshalBinary() ([]byte, error) {
	if len(m.Netname) > maxStringLen || len(m.Verb) > maxStringLen {
		return nil, fmt.Errorf("message: netname or verb exceeds %d bytes", maxStringLen)
	}

	total := 1 + 2 + len(m.Netname) + 2 + len(m.Verb) + 4 + len(m.Payload)
	buf := make([]byte, total)

	offset := 0
	buf[offset] = m.ProtoVersion
	offset++

	offset = putString(buf, offset, m.Netname)
	offset = putString(buf, offset, m.Verb)
	putBytes(buf, offset, m.Payload)
	return buf, nil
}

// UnmarshalBinary decodes a request envelope, validating every length prefix
// against the remaining data.
func (m *Request) UnmarshalBinary(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("message: request envelope too short")
	}
	m.ProtoVersion = data[0]
	offset := 1

	var err error
	if m.Netname, offset, err = readString(data, offset); err != nil {
		return err
	}
	if m.Verb, offset, err = readString(data, offset); err != nil {
		return err
	}
	if m.Payload, _, err = readBytes(data, offset); err != nil {
		return err
	}
	return nil
}

// MarshalBinary encodes the response envelope into its wire layout.
func (m *Response) MarshalBinary() ([]byte, error) {
	if len(m.Kind) > maxStringLen {
		return nil, fmt.Errorf("message: kind exceeds %d bytes", maxStringLen)
	}

	buf := make([]byte, 2+len(m.Kind)+4+len(m.Body))
	offset := putString(buf, 0, m.Kind)
	putBytes(buf, offset, m.Body)
	return buf, nil
}

// UnmarshalBinary decodes a response envelope, validating every length prefix
// against the remaining data.
func (m *Response) UnmarshalBinary(data []byte) error {
	var err error
	offset := 0
	if m.Kind, offset, err = readString(data, offset); err != nil {
		return err
	}
	if m.Body, _, err = readBytes(data, offset); err != nil {
		return err
	}
	return nil
}

const maxStringLen = 1<<16 - 1

// putString writes a uint16 length prefix followed by the string bytes,
// returning the next offset.
func putString(buf []byte, offset int, s string) int {
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(s)))
	offset += 2
	copy(buf[offset:offset+len(s)], s)
	return offset + len(s)
}

// putBytes writes a uint32 length prefix followed by the raw bytes,
// returning the next offset.
func putBytes(buf []byte, offset int, b []byte) int {
	binary.BigEndian.PutUint32(buf[offset:offset+4], uint32(len(b)))
	offset += 4
	copy(buf[offset:offset+len(b)], b)
	return offset + len(b)
}

func readString(data []byte, offset int) (string, int, error) {
	if len(data)-offset < 2 {
		return "", 0, fmt.Errorf("message: truncated string length at offset %d", offset)
	}
	n := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if len(data)-offset < n {
		return "", 0, fmt.Errorf("message: string of %d bytes exceeds remaining %d", n, len(data)-offset)
	}
	return string(data[offset : offset+n]), offset + n, nil
}

func readBytes(data []byte, offset int) ([]byte, int, error) {
	if len(data)-offset < 4 {
		return nil, 0, fmt.Errorf("message: truncated byte-field length at offset %d", offset)
	}
	n := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data)-offset < n {
		return nil, 0, fmt.Errorf("message: byte field of %d bytes exceeds remaining %d", n, len(data)-offset)
	}
	b := make([]byte, n)
	copy(b, data[offset:offset+n])
	return b, offset + n, nil
}
