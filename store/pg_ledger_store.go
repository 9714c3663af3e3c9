package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	_ "github.com/lib/pq"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/types"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS qc_accounts (
	key_hash   TEXT PRIMARY KEY,
	public_key TEXT NOT NULL,
	balance    NUMERIC(78, 0) NOT NULL CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS qc_transactions (
	id                      TEXT PRIMARY KEY,
	owner                   TEXT NOT NULL REFERENCES qc_accounts(key_hash),
	seq                     BIGINT NOT NULL,
	from_hash               TEXT NOT NULL,
	to_hash                 TEXT NOT NULL,
	amount                  NUMERIC(78, 0) NOT NULL,
	ts                      TEXT NOT NULL,
	signature               TEXT NOT NULL UNIQUE,
	sender_signature        TEXT NOT NULL DEFAULT '',
	received_tx_id          TEXT NOT NULL DEFAULT '',
	previous_hash           TEXT NOT NULL DEFAULT '',
	tx_hash                 TEXT NOT NULL,
	pending                 BOOLEAN NOT NULL,
	receiving               BOOLEAN NOT NULL,
	last                    BOOLEAN NOT NULL,
	UNIQUE (owner, seq)
);
CREATE INDEX IF NOT EXISTS qc_transactions_tip ON qc_transactions (owner) WHERE last;
CREATE INDEX IF NOT EXISTS qc_transactions_pending_in ON qc_transactions (to_hash) WHERE pending AND NOT receiving;
CREATE UNIQUE INDEX IF NOT EXISTS qc_transactions_sender_sig ON qc_transactions (sender_signature) WHERE receiving;
`

const txColumns = `id, owner, seq, from_hash, to_hash, amount::TEXT, ts, signature, sender_signature,
	received_tx_id, previous_hash, tx_hash, pending, receiving, last`

// PgLedgerStore implements LedgerStore on PostgreSQL
type PgLedgerStore struct {
	db *sql.DB
}

// NewPgLedgerStore opens dsn and makes sure the schema exists
func NewPgLedgerStore(dsn string) (*PgLedgerStore, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PgLedgerStore{db: conn}
	if err := s.EnsureSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgLedgerStore) EnsureSchema() error {
	if _, err := s.db.Exec(pgSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PgLedgerStore) GetAccount(keyHash string) (*types.Account, error) {
	var acc types.Account
	var balance string
	err := s.db.QueryRow(`SELECT key_hash, public_key, balance::TEXT FROM qc_accounts WHERE key_hash=$1`, keyHash).
		Scan(&acc.KeyHash, &acc.PublicKey, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not get account %s: %w", keyHash, err)
	}
	if acc.Balance, err = uint256.FromDecimal(balance); err != nil {
		return nil, fmt.Errorf("account %s has malformed balance %q: %w", keyHash, balance, err)
	}
	return &acc, nil
}

func (s *PgLedgerStore) AccountExists(keyHash string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM qc_accounts WHERE key_hash=$1)`, keyHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("could not check account %s: %w", keyHash, err)
	}
	return exists, nil
}

func (s *PgLedgerStore) GetTransaction(id string) (*types.Transaction, error) {
	return s.queryOne(`SELECT `+txColumns+` FROM qc_transactions WHERE id=$1`, id)
}

func (s *PgLedgerStore) GetChainTip(owner string) (*types.Transaction, error) {
	return s.queryOne(`SELECT `+txColumns+` FROM qc_transactions WHERE owner=$1 AND last`, owner)
}

func (s *PgLedgerStore) FindBySignature(signature string) (*types.Transaction, error) {
	return s.queryOne(`SELECT `+txColumns+` FROM qc_transactions WHERE signature=$1`, signature)
}

func (s *PgLedgerStore) FindBySenderSignature(signature string) (*types.Transaction, error) {
	return s.queryOne(`SELECT `+txColumns+` FROM qc_transactions WHERE sender_signature=$1 AND receiving`, signature)
}

func (s *PgLedgerStore) GetChain(owner string) ([]*types.Transaction, error) {
	return s.queryMany(`SELECT `+txColumns+` FROM qc_transactions WHERE owner=$1 ORDER BY seq`, owner)
}

func (s *PgLedgerStore) GetPendingIncoming(keyHash string) ([]*types.Transaction, error) {
	return s.queryMany(`SELECT `+txColumns+` FROM qc_transactions
		WHERE to_hash=$1 AND pending AND NOT receiving ORDER BY owner, seq`, keyHash)
}

func (s *PgLedgerStore) Commit(update *Update) (err error) {
	if update == nil || update.Empty() {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logx.Error("STORE", "Rollback failed:", rbErr)
			}
		}
	}()

	for _, acc := range update.Accounts {
		_, err = tx.Exec(`INSERT INTO qc_accounts (key_hash, public_key, balance) VALUES ($1, $2, $3::NUMERIC)
			ON CONFLICT (key_hash) DO UPDATE SET balance = EXCLUDED.balance`,
			acc.KeyHash, acc.PublicKey, acc.Balance.Dec())
		if err != nil {
			return fmt.Errorf("upsert account %s: %w", acc.KeyHash, err)
		}
	}
	for _, t := range update.Transactions {
		_, err = tx.Exec(`INSERT INTO qc_transactions (`+strings.ReplaceAll(txColumns, "amount::TEXT", "amount")+`)
			VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (id) DO UPDATE SET pending = EXCLUDED.pending, last = EXCLUDED.last`,
			t.ID, t.Owner, int64(t.Sequence), t.From, t.To, amountDec(t.Amount), t.Timestamp, t.Signature,
			t.SenderSignature, t.ReceivedTransactionID, t.PreviousTransactionHash, t.TransactionHash,
			t.Pending, t.Receiving, t.Last)
		if err != nil {
			return fmt.Errorf("upsert transaction %s: %w", t.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PgLedgerStore) MustClose() {
	if err := s.db.Close(); err != nil {
		logx.Error("STORE", "Failed to close postgres:", err.Error())
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*types.Transaction, error) {
	var t types.Transaction
	var seq int64
	var amount string
	err := row.Scan(&t.ID, &t.Owner, &seq, &t.From, &t.To, &amount, &t.Timestamp, &t.Signature,
		&t.SenderSignature, &t.ReceivedTransactionID, &t.PreviousTransactionHash, &t.TransactionHash,
		&t.Pending, &t.Receiving, &t.Last)
	if err != nil {
		return nil, err
	}
	t.Sequence = uint64(seq)
	if t.Amount, err = uint256.FromDecimal(amount); err != nil {
		return nil, fmt.Errorf("transaction %s has malformed amount %q: %w", t.ID, amount, err)
	}
	return &t, nil
}

func (s *PgLedgerStore) queryOne(query string, arg string) (*types.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	return t, nil
}

func (s *PgLedgerStore) queryMany(query string, arg string) ([]*types.Transaction, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []*types.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func amountDec(a *uint256.Int) string {
	if a == nil {
		return "0"
	}
	return a.Dec()
}
