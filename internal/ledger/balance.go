package ledger

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"github.com/splitzy/expense-service/pkg/money"
)

// PairBalance is the single canonical ledger row for an unordered user
// pair. UserA always sorts before UserB, and Amount is signed with a fixed
// convention: positive means UserA owes UserB. The convention is set at row
// creation and never flipped; callers translate their own "who owes whom"
// question into the canonical sign.
type PairBalance struct {
	ID        uuid.UUID
	UserA     uuid.UUID
	UserB     uuid.UUID
	Amount    money.Money
	UpdatedAt time.Time
}

// CanonicalPair orders two distinct user IDs. flipped is true when the
// arguments arrived in reverse canonical order, in which case any signed
// amount expressed from the first argument's perspective must be negated
// before it is applied to the canonical row.
func CanonicalPair(a, b uuid.UUID) (first, second uuid.UUID, flipped bool) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b, false
	}
	return b, a, true
}

// UserBalance is one entry of a per-user balance listing: positive Amount
// means the listing's owner owes OtherUserID.
type UserBalance struct {
	OtherUserID uuid.UUID   `json:"other_user_id"`
	Amount      money.Money `json:"amount"`
}
