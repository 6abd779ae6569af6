package model

import (
	"encoding/json"
	"time"
)

// Declaration is a ledger-agnostic view of one observed declaration event.
type Declaration struct {
	Code       string          `json:"iscc_code"`
	Actor      string          `json:"actor"`
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
}
