package types

import (
	"github.com/holiman/uint256"
)

type RegisterRequest struct {
	PublicKey string `json:"public_key"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

type SendRequest struct {
	SourceHash          string       `json:"source_hash"`
	DestHash            string       `json:"dest_hash"`
	Amount              *uint256.Int `json:"amount"`
	PreviousTransaction string       `json:"previous_transaction"`
	Timestamp           string       `json:"timestamp"`
	Signature           string       `json:"signature"`
}

type ReceiveRequest struct {
	TransactionID       string `json:"transaction_id"`
	TransactionSig      string `json:"transaction_sig"`
	PreviousTransaction string `json:"previous_transaction"`
	Timestamp           string `json:"timestamp"`
	Signature           string `json:"signature"`
}

type AccountRequest struct {
	KeyHash string `json:"key_hash"`
}

type JoinRequest struct {
	KeyHash string         `json:"key_hash"`
	Links   []*Transaction `json:"links"`
}

type JoinResult struct {
	KeyHash  string `json:"key_hash"`
	Appended int    `json:"appended"`
	Skipped  int    `json:"skipped"`
}

type HealthStatus struct {
	ReplicaID string `json:"replica_id"`
	Status    string `json:"status"`
	Uptime    uint64 `json:"uptime"`
}
