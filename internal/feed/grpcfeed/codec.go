package grpcfeed

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Frame is an encoded protobuf message.
type Frame []byte

// Codec moves Frames through gRPC without touching their bytes.
type Codec struct{}

// Name reports "proto" so servers see a regular protobuf content type.
func (Codec) Name() string {
	return "proto"
}

func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *Frame:
		return *m, nil
	case Frame:
		return m, nil
	default:
		return nil, fmt.Errorf("grpcfeed: cannot marshal %T", v)
	}
}

func (Codec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*Frame)
	if !ok {
		return fmt.Errorf("grpcfeed: cannot unmarshal into %T", v)
	}
	*f = append((*f)[:0], data...)
	return nil
}

// field is one top-level protobuf field. Varint holds the value of varint
// fields, Bytes the payload of length-delimited ones.
type field struct {
	Num    protowire.Number
	Type   protowire.Type
	Varint uint64
	Bytes  []byte
}

// parseFields splits a message into its top-level fields.
func parseFields(b []byte) ([]field, error) {
	var fields []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		f := field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		fields = append(fields, f)
	}
	return fields, nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}
