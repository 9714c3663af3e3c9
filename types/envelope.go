package types

import (
	"encoding/json"
)

// Envelope wraps every successful replica reply. Signature covers only the timestamp:
// it authenticates the replica and the freshness of the reply, never the body.
type Envelope struct {
	Replica   string          `json:"replica"`
	Timestamp string          `json:"timestamp"`
	Signature string          `json:"signature"`
	Result    json.RawMessage `json:"result"`
}
