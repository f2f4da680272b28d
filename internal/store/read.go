package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ordokr/LMS/internal/ir"
)

var errNoRows = sql.ErrNoRows

// StateRow is one row of sync_state. Deleted rows are tombstones: the key is
// absent but its version is kept so later writes stay monotonic.
type StateRow struct {
	Key     []byte
	Value   []byte
	Version uint64
	Deleted bool
}

// BatchInfo is one row of batches.
type BatchInfo struct {
	Seq     uint64   `json:"seq"`
	ID      string   `json:"id"`
	OpCount int      `json:"op_count"`
	Block   ir.Block `json:"block"`
}

// LoadState returns every row of sync_state, tombstones included, ordered by
// key.
func (s *Store) LoadState(ctx context.Context) ([]StateRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, version, deleted
		FROM sync_state
		ORDER BY key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	defer rows.Close()

	out := []StateRow{}
	for rows.Next() {
		var (
			r       StateRow
			version int64
		)
		if err := rows.Scan(&r.Key, &r.Value, &version, &r.Deleted); err != nil {
			return nil, fmt.Errorf("load state: scan: %w", err)
		}
		r.Version = uint64(version)
		if !r.Deleted && r.Value == nil {
			r.Value = []byte{}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load state: iterate: %w", err)
	}
	return out, nil
}

// ReadEntry returns the live entry for key. ok is false for absent keys and
// tombstones.
func (s *Store) ReadEntry(ctx context.Context, key []byte) (entry ir.Entry, ok bool, err error) {
	var (
		version int64
		deleted bool
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT value, version, deleted FROM sync_state WHERE key = ?
	`, key).Scan(&entry.Value, &version, &deleted)
	if err == errNoRows {
		return ir.Entry{}, false, nil
	}
	if err != nil {
		return ir.Entry{}, false, fmt.Errorf("read entry: %w", err)
	}
	if deleted {
		return ir.Entry{}, false, nil
	}
	entry.Version = uint64(version)
	return entry, true, nil
}

// LastBatch returns the most recently committed batch. ok is false for an
// empty store.
func (s *Store) LastBatch(ctx context.Context) (info BatchInfo, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, op_count, prev_hash, commitment, hash
		FROM batches
		ORDER BY seq DESC
		LIMIT 1
	`)
	info, err = scanBatchInfo(row)
	if err == errNoRows {
		return BatchInfo{}, false, nil
	}
	if err != nil {
		return BatchInfo{}, false, fmt.Errorf("last batch: %w", err)
	}
	return info, true, nil
}

// LastBlock returns the chain head. ok is false for an empty store.
func (s *Store) LastBlock(ctx context.Context) (ir.Block, bool, error) {
	info, ok, err := s.LastBatch(ctx)
	return info.Block, ok, err
}

// ReadBlocks returns up to limit batches with seq > afterSeq, oldest first.
// limit <= 0 means no limit.
func (s *Store) ReadBlocks(ctx context.Context, afterSeq uint64, limit int) ([]BatchInfo, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT is unbounded
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, op_count, prev_hash, commitment, hash
		FROM batches
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}
	defer rows.Close()

	out := []BatchInfo{}
	for rows.Next() {
		info, err := scanBatchInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("read blocks: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read blocks: iterate: %w", err)
	}
	return out, nil
}

// BlockByHash returns the batch sealed under h.
// Returns sql.ErrNoRows if not found.
func (s *Store) BlockByHash(ctx context.Context, h ir.Hash) (BatchInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, op_count, prev_hash, commitment, hash
		FROM batches
		WHERE hash = ?
	`, hashBytes(h))
	info, err := scanBatchInfo(row)
	if err != nil {
		return BatchInfo{}, fmt.Errorf("block by hash: %w", err)
	}
	return info, nil
}

// Commitment implements chain.CommitmentSource. Lookup failures are reported
// as unknown hashes.
func (s *Store) Commitment(blockHash ir.Hash) (ir.Hash, bool) {
	info, err := s.BlockByHash(context.Background(), blockHash)
	if err != nil {
		return ir.ZeroHash, false
	}
	return info.Block.Commitment, true
}

// ReadBatchResults returns the result rows of batch seq in operation order.
func (s *Store) ReadBatchResults(ctx context.Context, seq uint64) ([]ir.ResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, outcome, new_version
		FROM batch_results
		WHERE batch_seq = ?
		ORDER BY idx ASC
	`, int64(seq))
	if err != nil {
		return nil, fmt.Errorf("read batch results: %w", err)
	}
	defer rows.Close()

	out := []ir.ResultRow{}
	for rows.Next() {
		var (
			r       ir.ResultRow
			outcome string
			version int64
		)
		if err := rows.Scan(&r.Key, &outcome, &version); err != nil {
			return nil, fmt.Errorf("read batch results: scan: %w", err)
		}
		if r.Outcome, err = unmarshalOutcome(outcome); err != nil {
			return nil, fmt.Errorf("read batch results: %w", err)
		}
		r.NewVersion = uint64(version)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read batch results: iterate: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatchInfo(row rowScanner) (BatchInfo, error) {
	var (
		info                         BatchInfo
		seq                          int64
		prev, commitment, blockHash []byte
	)
	if err := row.Scan(&seq, &info.ID, &info.OpCount, &prev, &commitment, &blockHash); err != nil {
		return BatchInfo{}, err
	}

	var err error
	info.Seq = uint64(seq)
	info.Block.Index = info.Seq
	if info.Block.PrevHash, err = scanHash(prev, "prev_hash"); err != nil {
		return BatchInfo{}, err
	}
	if info.Block.Commitment, err = scanHash(commitment, "commitment"); err != nil {
		return BatchInfo{}, err
	}
	if info.Block.Hash, err = scanHash(blockHash, "hash"); err != nil {
		return BatchInfo{}, err
	}
	return info, nil
}
