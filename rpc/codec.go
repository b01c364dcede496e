// Package rpc provides the internal gRPC transport consumed by the Webhook
// and Apps services. Messages are hand-defined Go structs carried over a
// JSON codec; both ends live in this repository, so no schema compiler is
// involved.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype both ends of the internal transport use
const CodecName = "json"

// jsonCodec marshals RPC messages as JSON
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
