package core

import (
	"encoding/json"

	"github.com/nikolaydubina/fpdecimal"
)

// Balance is a snapshot of one user's holdings in one currency. The ledger
// owns the authoritative state; a Balance handed out of the ledger is a
// detached copy.
type Balance struct {
	UserID    int64
	Currency  string
	Available fpdecimal.Decimal
	Locked    fpdecimal.Decimal
}

// Total returns available plus locked.
func (b Balance) Total() fpdecimal.Decimal {
	return b.Available.Add(b.Locked)
}

// MarshalJSON implements Marshaler interface
func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID    int64  `json:"userId"`
		Currency  string `json:"currency"`
		Available string `json:"available"`
		Locked    string `json:"locked"`
	}{
		UserID:    b.UserID,
		Currency:  b.Currency,
		Available: b.Available.String(),
		Locked:    b.Locked.String(),
	})
}
