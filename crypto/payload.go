package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/holiman/uint256"
)

// AmountBytes renders amount as minimal big-endian two's-complement bytes, i.e. a leading
// zero byte is kept when the top bit of the magnitude is set and zero encodes as a single 0x00.
// This matches the byte form other implementations of the protocol sign.
func AmountBytes(amount *uint256.Int) []byte {
	if amount == nil || amount.IsZero() {
		return []byte{0}
	}
	b := amount.Bytes()
	if b[0]&0x80 != 0 {
		return append([]byte{0}, b...)
	}
	return b
}

// RegisterPayload is the content signed by a new account owner.
func RegisterPayload(timestamp string) []byte {
	return []byte(timestamp)
}

// SendPayload is the content signed by the source account of a transfer.
func SendPayload(sourceHash, destHash string, amount *uint256.Int, previous, timestamp string) []byte {
	var buf bytes.Buffer
	buf.WriteString(sourceHash)
	buf.WriteString(destHash)
	buf.Write(AmountBytes(amount))
	buf.WriteString(previous)
	buf.WriteString(timestamp)
	return buf.Bytes()
}

// ReceivePayload is the content signed by the destination account when it claims a transfer.
// transactionSig is the raw (decoded) signature of the send being received.
func ReceivePayload(transactionID string, transactionSig []byte, previous, timestamp string) []byte {
	var buf bytes.Buffer
	buf.WriteString(transactionID)
	buf.Write(transactionSig)
	buf.WriteString(previous)
	buf.WriteString(timestamp)
	return buf.Bytes()
}

// ResponsePayload is the content a replica signs on every reply.
func ResponsePayload(timestamp string) []byte {
	return []byte(timestamp)
}

// Digest is base64(SHA-256) over the parts joined by '|'.
func Digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return base64.StdEncoding.EncodeToString(sum[:])
}
