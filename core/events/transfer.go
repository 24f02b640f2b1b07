package events

import (
	"math/big"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/types"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
)

const (
	// TypeTransfer is emitted for asset balance movements in the bank ledger.
	TypeTransfer = "bank.transfer"
)

type Transfer struct {
	From      crypto.Address
	To        crypto.Address
	Amount    *big.Int
	Timestamp int64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
	}
	// Genesis credits have no sender.
	if !e.From.IsZero() {
		attrs["from"] = e.From.String()
	}
	return &types.Event{Type: TypeTransfer, Timestamp: e.Timestamp, Attributes: attrs}
}
