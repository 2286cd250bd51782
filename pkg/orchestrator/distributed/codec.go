// Package distributed implements a grpc-backed ports.Broker for dispatching
// tasks to remote executor workers (the "process"/"ray"/"redis" distributed
// modes named in spec §4.4.4 collapse, from this module's perspective, to
// "some process not this one" — the concrete transport is grpc regardless
// of which worker pool receives the call). Grounded on the teacher's
// GRPCLLMClient (pkg/agent/llm_grpc.go) for the insecure-transport,
// sidecar-style client construction, generalized from a generated
// protobuf service to a small hand-registered grpc.ServiceDesc using a JSON
// codec — there is no .proto compiler available in this module's build, so
// rather than invent non-functional generated bindings, wire messages are
// plain structs encoded through grpc's pluggable Codec interface instead of
// protoc-gen-go stubs.
package distributed

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered with grpc's global encoding registry, the same
// mechanism protoc-gen-go output uses under the hood (encoding.RegisterCodec),
// just backed by encoding/json instead of a generated protobuf codec.
const codecName = "orchestrator-json"

// jsonCodec implements grpc/encoding.Codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("distributed: marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("distributed: unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
