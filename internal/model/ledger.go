package model

import (
	"strconv"
	"strings"
)

// Ledger is a registered source chain.
type Ledger struct {
	ID          uint32 `json:"id"`
	Slug        string `json:"slug"`
	URLTemplate string `json:"url_template"`
}

// TransactionURL fills the "{}" placeholders of the URL template with the
// transaction hash and, when present, the output index.
func (l Ledger) TransactionURL(txHash string, outIdx *uint32) string {
	if l.URLTemplate == "" {
		return ""
	}
	values := []string{txHash}
	if outIdx != nil {
		values = append(values, strconv.FormatUint(uint64(*outIdx), 10))
	}
	out := l.URLTemplate
	for _, value := range values {
		out = strings.Replace(out, "{}", value, 1)
	}
	return out
}
