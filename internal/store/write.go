package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ordokr/LMS/internal/ir"
)

// ErrChainMismatch is returned when a batch does not extend the stored chain
// head.
var ErrChainMismatch = errors.New("batch does not extend the chain head")

// StateChange is the final state of one key after a batch.
type StateChange struct {
	Key     []byte
	Value   []byte
	Version uint64
	Deleted bool
}

// BatchRecord is everything a committed batch persists.
type BatchRecord struct {
	Seq     uint64
	ID      string
	OpCount int
	Block   ir.Block
	Changes []StateChange
	Results []ir.ResultRow
}

// CommitBatch persists a batch in a single transaction: the state changes,
// the batch/block row and the ordered result rows. Either all of it is
// durable afterwards or none of it is.
//
// rec.Block.PrevHash must equal the hash of the last committed batch (the
// zero hash for the first batch); otherwise ErrChainMismatch is returned and
// nothing is written.
func (s *Store) CommitBatch(ctx context.Context, rec BatchRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit batch %d: begin tx: %w", rec.Seq, err)
	}
	defer tx.Rollback() // No-op if committed

	head := ir.ZeroHash
	var headBytes []byte
	err = tx.QueryRowContext(ctx, `
		SELECT hash FROM batches ORDER BY seq DESC LIMIT 1
	`).Scan(&headBytes)
	switch {
	case err == nil:
		if head, err = scanHash(headBytes, "hash"); err != nil {
			return fmt.Errorf("commit batch %d: %w", rec.Seq, err)
		}
	case errors.Is(err, errNoRows):
	default:
		return fmt.Errorf("commit batch %d: read head: %w", rec.Seq, err)
	}
	if head != rec.Block.PrevHash {
		return fmt.Errorf("commit batch %d: %w: head %s, prev %s", rec.Seq, ErrChainMismatch, head, rec.Block.PrevHash)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (seq, id, op_count, prev_hash, commitment, hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		int64(rec.Seq),
		rec.ID,
		rec.OpCount,
		hashBytes(rec.Block.PrevHash),
		hashBytes(rec.Block.Commitment),
		hashBytes(rec.Block.Hash),
	)
	if err != nil {
		return fmt.Errorf("commit batch %d: write batch: %w", rec.Seq, err)
	}

	for _, c := range rec.Changes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sync_state (key, value, version, deleted)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				version = excluded.version,
				deleted = excluded.deleted
		`,
			c.Key,
			valueColumn(c),
			int64(c.Version),
			c.Deleted,
		)
		if err != nil {
			return fmt.Errorf("commit batch %d: write state %q: %w", rec.Seq, c.Key, err)
		}
	}

	for i, row := range rec.Results {
		outcome, err := marshalOutcome(row.Outcome)
		if err != nil {
			return fmt.Errorf("commit batch %d: result %d: %w", rec.Seq, i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batch_results (batch_seq, idx, key, outcome, new_version)
			VALUES (?, ?, ?, ?, ?)
		`,
			int64(rec.Seq),
			i,
			row.Key,
			outcome,
			int64(row.NewVersion),
		)
		if err != nil {
			return fmt.Errorf("commit batch %d: write result %d: %w", rec.Seq, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch %d: commit: %w", rec.Seq, err)
	}
	return nil
}

func valueColumn(c StateChange) any {
	if c.Deleted {
		return nil
	}
	return nonNil(c.Value)
}
