package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/mezonai/quorumcoin/jsonx"
)

// ErrorCode identifies a class of ledger failure. Codes are stable on the wire.
type ErrorCode string

const (
	ErrCodeInternal ErrorCode = "internal_error"

	// Input validation
	ErrCodeNullArgument  ErrorCode = "null_argument"
	ErrCodeInvalidAmount ErrorCode = "invalid_amount"
	ErrCodeBatchTooLarge ErrorCode = "batch_too_large"

	// Identity and state conflicts
	ErrCodeKeyAlreadyRegistered     ErrorCode = "key_already_registered"
	ErrCodeAccountNotFound          ErrorCode = "account_not_found"
	ErrCodeSameSourceAndDestAccount ErrorCode = "same_source_and_dest_account"

	// Economic constraint
	ErrCodeAccountInsufficientAmount ErrorCode = "account_insufficient_amount"

	// Authentication and freshness
	ErrCodeInvalidSignature  ErrorCode = "invalid_signature"
	ErrCodeTimestampNotFresh ErrorCode = "timestamp_not_fresh"

	// Replay
	ErrCodeRepeatedTransaction        ErrorCode = "repeated_transaction"
	ErrCodeTransactionAlreadyReceived ErrorCode = "transaction_already_received"

	// Chain consistency
	ErrCodeWrongPreviousTransaction       ErrorCode = "wrong_previous_transaction"
	ErrCodeWritebackMismatchedTransaction ErrorCode = "writeback_mismatched_transaction"

	// Lookup
	ErrCodeTransactionNotFound ErrorCode = "transaction_not_found"

	// Client side
	ErrCodeQuorumNotReached         ErrorCode = "quorum_not_reached"
	ErrCodeInvalidResponseSignature ErrorCode = "invalid_response_signature"
	ErrCodeReplicaUnavailable       ErrorCode = "replica_unavailable"
	ErrCodeRateLimited              ErrorCode = "rate_limited"
)

const (
	ErrMsgInternal                       = "Server error, please try again"
	ErrMsgNullArgument                   = "A required argument is missing"
	ErrMsgInvalidAmount                  = "Amount must be greater than zero"
	ErrMsgBatchTooLarge                  = "Too many links in one writeback"
	ErrMsgKeyAlreadyRegistered           = "This public key is already registered"
	ErrMsgAccountNotFound                = "Account does not exist"
	ErrMsgSameSourceAndDestAccount       = "Source and destination accounts must differ"
	ErrMsgAccountInsufficientAmount      = "Not enough balance in the source account"
	ErrMsgInvalidSignature               = "Signature is invalid"
	ErrMsgTimestampNotFresh              = "Timestamp is outside the accepted window"
	ErrMsgRepeatedTransaction            = "This signature was already used"
	ErrMsgTransactionAlreadyReceived     = "This transaction was already received"
	ErrMsgWrongPreviousTransaction       = "Previous transaction does not match the chain tip"
	ErrMsgWritebackMismatchedTransaction = "Writeback conflicts with the stored chain"
	ErrMsgTransactionNotFound            = "Transaction could not be found"
	ErrMsgQuorumNotReached               = "Not enough replicas answered successfully"
	ErrMsgInvalidResponseSignature       = "Replica response signature is invalid"
	ErrMsgReplicaUnavailable             = "Replica could not be reached"
	ErrMsgRateLimited                    = "Too many requests, please slow down"
)

// LedgerError is the error value every ledger operation fails with.
type LedgerError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	b, _ := jsonx.Marshal(LedgerError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(b)
}

// Is matches any LedgerError with the same code, so sentinels work with errors.Is
// regardless of the detail message.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new LedgerError and returns it as error interface
func NewError(code ErrorCode, message string) error {
	return &LedgerError{
		Code:    code,
		Message: message,
	}
}

// Wrapf returns a LedgerError whose message is the default message for code followed by detail.
func Wrapf(code ErrorCode, format string, args ...interface{}) error {
	return &LedgerError{
		Code:    code,
		Message: fmt.Sprintf("%s: %s", messageFor(code), fmt.Sprintf(format, args...)),
	}
}

// CodeOf extracts the code of err. Errors outside the taxonomy are internal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var le *LedgerError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return ErrCodeInternal
}

// Sentinels for errors.Is matching
var (
	ErrInternal                       = NewError(ErrCodeInternal, ErrMsgInternal)
	ErrNullArgument                   = NewError(ErrCodeNullArgument, ErrMsgNullArgument)
	ErrInvalidAmount                  = NewError(ErrCodeInvalidAmount, ErrMsgInvalidAmount)
	ErrBatchTooLarge                  = NewError(ErrCodeBatchTooLarge, ErrMsgBatchTooLarge)
	ErrKeyAlreadyRegistered           = NewError(ErrCodeKeyAlreadyRegistered, ErrMsgKeyAlreadyRegistered)
	ErrAccountNotFound                = NewError(ErrCodeAccountNotFound, ErrMsgAccountNotFound)
	ErrSameSourceAndDestAccount       = NewError(ErrCodeSameSourceAndDestAccount, ErrMsgSameSourceAndDestAccount)
	ErrAccountInsufficientAmount      = NewError(ErrCodeAccountInsufficientAmount, ErrMsgAccountInsufficientAmount)
	ErrInvalidSignature               = NewError(ErrCodeInvalidSignature, ErrMsgInvalidSignature)
	ErrTimestampNotFresh              = NewError(ErrCodeTimestampNotFresh, ErrMsgTimestampNotFresh)
	ErrRepeatedTransaction            = NewError(ErrCodeRepeatedTransaction, ErrMsgRepeatedTransaction)
	ErrTransactionAlreadyReceived     = NewError(ErrCodeTransactionAlreadyReceived, ErrMsgTransactionAlreadyReceived)
	ErrWrongPreviousTransaction       = NewError(ErrCodeWrongPreviousTransaction, ErrMsgWrongPreviousTransaction)
	ErrWritebackMismatchedTransaction = NewError(ErrCodeWritebackMismatchedTransaction, ErrMsgWritebackMismatchedTransaction)
	ErrTransactionNotFound            = NewError(ErrCodeTransactionNotFound, ErrMsgTransactionNotFound)
	ErrQuorumNotReached               = NewError(ErrCodeQuorumNotReached, ErrMsgQuorumNotReached)
	ErrInvalidResponseSignature       = NewError(ErrCodeInvalidResponseSignature, ErrMsgInvalidResponseSignature)
	ErrReplicaUnavailable             = NewError(ErrCodeReplicaUnavailable, ErrMsgReplicaUnavailable)
	ErrRateLimited                    = NewError(ErrCodeRateLimited, ErrMsgRateLimited)
)

func messageFor(code ErrorCode) string {
	switch code {
	case ErrCodeNullArgument:
		return ErrMsgNullArgument
	case ErrCodeInvalidAmount:
		return ErrMsgInvalidAmount
	case ErrCodeBatchTooLarge:
		return ErrMsgBatchTooLarge
	case ErrCodeKeyAlreadyRegistered:
		return ErrMsgKeyAlreadyRegistered
	case ErrCodeAccountNotFound:
		return ErrMsgAccountNotFound
	case ErrCodeSameSourceAndDestAccount:
		return ErrMsgSameSourceAndDestAccount
	case ErrCodeAccountInsufficientAmount:
		return ErrMsgAccountInsufficientAmount
	case ErrCodeInvalidSignature:
		return ErrMsgInvalidSignature
	case ErrCodeTimestampNotFresh:
		return ErrMsgTimestampNotFresh
	case ErrCodeRepeatedTransaction:
		return ErrMsgRepeatedTransaction
	case ErrCodeTransactionAlreadyReceived:
		return ErrMsgTransactionAlreadyReceived
	case ErrCodeWrongPreviousTransaction:
		return ErrMsgWrongPreviousTransaction
	case ErrCodeWritebackMismatchedTransaction:
		return ErrMsgWritebackMismatchedTransaction
	case ErrCodeTransactionNotFound:
		return ErrMsgTransactionNotFound
	case ErrCodeQuorumNotReached:
		return ErrMsgQuorumNotReached
	case ErrCodeInvalidResponseSignature:
		return ErrMsgInvalidResponseSignature
	case ErrCodeReplicaUnavailable:
		return ErrMsgReplicaUnavailable
	case ErrCodeRateLimited:
		return ErrMsgRateLimited
	default:
		return ErrMsgInternal
	}
}

// rpcCodes maps codes to JSON-RPC error numbers; -32000 is the generic server error.
var rpcCodes = map[ErrorCode]int32{
	ErrCodeInternal:                       -32000,
	ErrCodeNullArgument:                   -32010,
	ErrCodeInvalidAmount:                  -32011,
	ErrCodeKeyAlreadyRegistered:           -32012,
	ErrCodeAccountNotFound:                -32013,
	ErrCodeSameSourceAndDestAccount:       -32014,
	ErrCodeAccountInsufficientAmount:      -32015,
	ErrCodeInvalidSignature:               -32016,
	ErrCodeTimestampNotFresh:              -32017,
	ErrCodeRepeatedTransaction:            -32018,
	ErrCodeTransactionAlreadyReceived:     -32019,
	ErrCodeWrongPreviousTransaction:       -32020,
	ErrCodeWritebackMismatchedTransaction: -32021,
	ErrCodeTransactionNotFound:            -32022,
	ErrCodeBatchTooLarge:                  -32023,
	ErrCodeRateLimited:                    -32029,
}

// RPCCode returns the JSON-RPC error number for code.
func RPCCode(code ErrorCode) int32 {
	if c, ok := rpcCodes[code]; ok {
		return c
	}
	return rpcCodes[ErrCodeInternal]
}
