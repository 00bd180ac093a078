package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

type Policy struct {
	// MaxOrderQuantity caps the size of a single order. Zero disables it.
	MaxOrderQuantity int64 // 10000
}

func DefaultPolicy() Policy {
	return Policy{MaxOrderQuantity: 10000}
}

// Snapshot is the read-only view of an owner's balances at submission time.
type Snapshot struct {
	Now     time.Time
	OwnerID string

	Cash decimal.Decimal
	Held int64 // current position quantity in the order's symbol

	// ReferencePrice prices a BUY for the funds check. Nil when no
	// price is known (a MARKET order without a quote).
	ReferencePrice *decimal.Decimal
}
