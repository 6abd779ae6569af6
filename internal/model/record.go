package model

import (
	"encoding/json"
	"time"
)

// IsccRecord is the durable entity stored per minted ISCC-ID.
type IsccRecord struct {
	ID         string          `json:"iscc_id"`
	Code       string          `json:"iscc_code"`
	Actor      string          `json:"actor"`
	Revision   uint32          `json:"revision"`
	LedgerID   uint32          `json:"ledger_id"`
	ChainIndex uint64          `json:"chain_index"`
	BlockHash  string          `json:"block_hash"`
	TxHash     string          `json:"tx_hash"`
	TxOutIdx   *uint32         `json:"tx_out_idx,omitempty"`
	DeclaredAt time.Time       `json:"declared_at"`
	Tophash    string          `json:"tophash,omitempty"`
	Title      string          `json:"title,omitempty"`
	Extra      string          `json:"extra,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewRecord builds a revision 0 record for a freshly minted ID.
func NewRecord(id string, decl Declaration) IsccRecord {
	rec := IsccRecord{ID: id}
	rec.Apply(decl)
	return rec
}

// Owns reports whether the record belongs to the declaring actor and code.
func (r IsccRecord) Owns(decl Declaration) bool {
	return r.Actor == decl.Actor && r.Code == decl.Code
}

// Apply copies the declaration onto the record. Optional fields are only
// overwritten when the declaration carries them. ID and Revision are untouched.
func (r *IsccRecord) Apply(decl Declaration) {
	r.Code = decl.Code
	r.Actor = decl.Actor
	r.LedgerID = decl.LedgerID
	r.ChainIndex = decl.ChainIndex
	r.BlockHash = decl.BlockHash
	r.TxHash = decl.TxHash
	r.TxOutIdx = decl.TxOutIdx
	r.DeclaredAt = decl.DeclaredAt
	if decl.Tophash != "" {
		r.Tophash = decl.Tophash
	}
	if decl.Title != "" {
		r.Title = decl.Title
	}
	if decl.Extra != "" {
		r.Extra = decl.Extra
	}
	if len(decl.Metadata) > 0 {
		r.Metadata = decl.Metadata
	}
}
