package xid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns prefix-<uuidv7>. The v7 layout sorts by creation time, which keeps
// ids usable as the tie-breaker in ledger ordering.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), uuid.NewString())
	}
	return prefix + "-" + id.String()
}
