package ledger

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ashita-ai/sensemaker/internal/hash"
)

// ExternIO is a msgpack-encoded value crossing the node boundary.
type ExternIO []byte

// EncodeExternIO serializes v the way the node expects zome inputs.
func EncodeExternIO(v any) (ExternIO, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("ledger: encode extern io: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes the payload into v.
func (x ExternIO) Decode(v any) error {
	if err := msgpack.Unmarshal(x, v); err != nil {
		return fmt.Errorf("ledger: decode extern io: %w", err)
	}
	return nil
}

// CapSecret grants access to a capability-protected function.
type CapSecret []byte

// ZomeCall names a function in a zome of a cell and carries its input.
type ZomeCall struct {
	CellID     hash.CellID
	ZomeName   string
	FnName     string
	Payload    ExternIO
	CapSecret  CapSecret // nil for unrestricted functions
	Provenance hash.AgentPubKey
}

// StatusOK is the health status of a node ready for zome calls.
const StatusOK = "ok"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// zomeCallBody is the wire format for POST /v1/zome_call.
type zomeCallBody struct {
	RequestID  uuid.UUID        `json:"request_id"`
	CellID     hash.CellID      `json:"cell_id"`
	ZomeName   string           `json:"zome_name"`
	FnName     string           `json:"fn_name"`
	Payload    []byte           `json:"payload"`
	CapSecret  []byte           `json:"cap_secret"`
	Provenance hash.AgentPubKey `json:"provenance"`
}

type zomeCallReply struct {
	Payload []byte `json:"payload"`
}
