package payments

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const txRefPrefix = "SAFAR"

// NewTxRef builds the idempotency key shared with the gateway for one
// payment attempt: SAFAR-<bookingID>-<8 hex chars>. The booking id keeps
// the reference traceable in logs; the 32-bit random suffix makes
// collisions negligible, and the tx_ref unique constraint catches the
// remainder.
func NewTxRef(bookingID int64) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand.Read does not fail
	}

	return fmt.Sprintf("%s-%d-%s", txRefPrefix, bookingID, strings.ToUpper(hex.EncodeToString(buf)))
}
