package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ordokr/LMS/internal/arena"
	"github.com/ordokr/LMS/internal/bridge"
	"github.com/ordokr/LMS/internal/chain"
	"github.com/ordokr/LMS/internal/compiler"
	"github.com/ordokr/LMS/internal/ir"
	"github.com/ordokr/LMS/internal/queryir"
	"github.com/ordokr/LMS/internal/store"
)

// BatchRequest is the body of POST /v1/batches.
type BatchRequest struct {
	Ops []bridge.TextOp `json:"ops"`
}

// ResultRow is the JSON form of ir.ResultRow.
type ResultRow struct {
	Key        string `json:"key"`
	Outcome    string `json:"outcome"`
	NewVersion uint64 `json:"new_version,omitempty"`
}

// BatchResponse is the reply to POST /v1/batches.
type BatchResponse struct {
	BatchID string      `json:"batch_id"`
	Block   ir.Block    `json:"block"`
	Results []ResultRow `json:"results"`
}

// handleBatch accepts JSON (BatchRequest) or CBOR (application/cbor with a
// count query parameter) and applies the batch.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var (
		h   arena.Handle
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/cbor") {
		count, convErr := strconv.Atoi(r.URL.Query().Get("count"))
		if convErr != nil {
			badRequest(w, "BAD_REQUEST", "count query parameter is required for CBOR batches")
			return
		}
		buf, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if readErr != nil {
			badRequest(w, "BAD_REQUEST", readErr.Error())
			return
		}
		h, err = s.rt.ProcessBatch(r.Context(), buf, count)
	} else {
		var req BatchRequest
		if decErr := decodeJSON(w, r, &req); decErr != nil {
			badRequest(w, "BAD_REQUEST", decErr.Error())
			return
		}
		ops, convErr := bridge.ParseTextOps(req.Ops)
		if convErr != nil {
			s.writeError(w, convErr)
			return
		}
		h, err = s.rt.ProcessOps(r.Context(), ops)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	c, err := s.rt.Collect(h)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewBatchResponse(c))
}

// NewBatchResponse renders a committed batch.
func NewBatchResponse(c bridge.Committed) BatchResponse {
	out := BatchResponse{BatchID: c.ID, Block: c.Block, Results: make([]ResultRow, len(c.Rows))}
	for i, row := range c.Rows {
		out.Results[i] = ResultRow{Key: string(row.Key), Outcome: row.Outcome.String(), NewVersion: row.NewVersion}
	}
	return out
}

// EntryResponse is the reply to GET /v1/state/{key}.
type EntryResponse struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Version uint64 `json:"version"`
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	e := s.rt.Engine()
	if e == nil {
		s.writeError(w, ir.NewError(ir.ErrCodeNotInitialized, "runtime is not initialized"))
		return
	}
	key := chi.URLParam(r, "*")
	entry, ok := e.Get([]byte(key))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]errorBody{"error": {Code: "NOT_FOUND", Message: fmt.Sprintf("key %q not found", key)}})
		return
	}
	writeJSON(w, http.StatusOK, EntryResponse{Key: key, Value: string(entry.Value), Version: entry.Version})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	e := s.rt.Engine()
	if e == nil {
		s.writeError(w, ir.NewError(ir.ErrCodeNotInitialized, "runtime is not initialized"))
		return
	}
	snap := e.Snapshot(r.URL.Query().Get("prefix"))
	out := make(map[string]EntryResponse, len(snap))
	for k, entry := range snap {
		out[k] = EntryResponse{Key: k, Value: string(entry.Value), Version: entry.Version}
	}
	writeJSON(w, http.StatusOK, map[string]any{"seq": e.Seq(), "entries": out})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	e := s.rt.Engine()
	if e == nil {
		s.writeError(w, ir.NewError(ir.ErrCodeNotInitialized, "runtime is not initialized"))
		return
	}
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			badRequest(w, "BAD_REQUEST", "after must be a sequence number")
			return
		}
		after = n
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "BAD_REQUEST", "limit must be a positive integer")
			return
		}
		limit = n
	}

	blocks, err := e.Blocks(r.Context(), after, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if blocks == nil {
		blocks = []store.BatchInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"head": e.Head(), "batches": blocks})
}

// VerifyRequest is the body of POST /v1/chain/verify.
type VerifyRequest struct {
	Hashes []ir.Hash `json:"hashes"`
}

// VerifyResponse reports chain validity. FirstBroken is -1 for a valid chain.
type VerifyResponse struct {
	Valid       bool `json:"valid"`
	FirstBroken int  `json:"first_broken"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "BAD_REQUEST", err.Error())
		return
	}
	valid, first := s.rt.CheckChain(chain.EncodeHashes(req.Hashes), len(req.Hashes))
	writeJSON(w, http.StatusOK, VerifyResponse{Valid: valid, FirstBroken: first})
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Query string         `json:"query"`
	Bound map[string]any `json:"bound,omitempty"`
}

// QueryResponse carries the optimized AST and the rows.
type QueryResponse struct {
	AST      json.RawMessage `json:"ast"`
	Warnings []string        `json:"warnings,omitempty"`
	Columns  []string        `json:"columns"`
	Rows     [][]any         `json:"rows"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "BAD_REQUEST", err.Error())
		return
	}
	res, err := s.rt.RunQuery(r.Context(), req.Query, req.Bound)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ast, err := encodeQuery(res)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		AST:      ast,
		Warnings: res.Warnings,
		Columns:  res.Columns,
		Rows:     res.Rows,
	})
}

// RulesRequest is the body of POST /v1/rules/parse.
type RulesRequest struct {
	Source string `json:"source"`
}

// RulesResponse lists compiled rules with validation errors and cycle
// warnings.
type RulesResponse struct {
	Rules  []ir.SyncRule              `json:"rules"`
	Errors []compiler.ValidationError `json:"errors"`
	Cycles []compiler.CycleWarning    `json:"cycles"`
}

func (s *Server) handleParseRules(w http.ResponseWriter, r *http.Request) {
	var req RulesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "BAD_REQUEST", err.Error())
		return
	}
	rules, err := compiler.ParseRules(req.Source)
	if err != nil {
		badRequest(w, "COMPILE_ERROR", err.Error())
		return
	}
	errs := compiler.Validate(rules)
	if errs == nil {
		errs = []compiler.ValidationError{}
	}
	status := http.StatusOK
	if len(errs) > 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, RulesResponse{Rules: rules, Errors: errs, Cycles: compiler.AnalyzeCycles(rules)})
}

func encodeQuery(res *bridge.QueryResult) (json.RawMessage, error) {
	data, err := queryir.Encode(res.Query)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
