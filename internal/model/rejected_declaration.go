package model

import "time"

// RejectedDeclaration records a declaration that failed validation.
type RejectedDeclaration struct {
	LedgerID   uint32 `json:"ledger_id"`
	ChainIndex uint64 `json:"chain_index"`
	TxHash     string `json:"tx_hash"`
	Actor      string `json:"actor"`
	Code       string `json:"iscc_code"`
	Error      string `json:"error"`
	RejectedAt string `json:"rejected_at"`
}

// Reject builds the journal entry for decl failing with err.
func Reject(decl Declaration, err error, at time.Time) RejectedDeclaration {
	return RejectedDeclaration{
		LedgerID:   decl.LedgerID,
		ChainIndex: decl.ChainIndex,
		TxHash:     decl.TxHash,
		Actor:      decl.Actor,
		Code:       decl.Code,
		Error:      err.Error(),
		RejectedAt: at.UTC().Format(time.RFC3339),
	}
}
