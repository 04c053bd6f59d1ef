package metering

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec carries plain JSON messages over gRPC under the "json" content
// subtype, so the collaborator needs no generated stubs.
type jsonCodec struct{}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
