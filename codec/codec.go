// Package codec handles serialization of the caller's request and response
// values. The envelope layout itself is fixed binary (see package message);
// the codec only covers the opaque payload carried inside it.
package codec

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

func GetCodec(codecType CodecType) Codec {
	// JSON is currently the only payload codec.
	return &JSONCodec{}
}
