package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
)

var (
	ErrInvalidStateTransition = errors.New("invalid parcel status transition")
	ErrAmountRequired         = errors.New("amount must be greater than zero")
)

var forwardTransitions = map[string][]string{
	domain.ParcelProcessing: {domain.ParcelSent, domain.ParcelReturned},
	domain.ParcelSent:       {domain.ParcelDelivered, domain.ParcelReturned},
}

// Transition validates a parcel status change. Re-entering the current state
// is a no-op and reports changed=false. Moving to delivered or returned needs
// the terminal amount (sold amount or return cost) in the same call.
func Transition(current, next string, amount decimal.Decimal) (bool, error) {
	if !IsParcelStatus(next) {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidStateTransition, next)
	}
	if current == next {
		return false, nil
	}

	allowed := false
	for _, candidate := range forwardTransitions[current] {
		if candidate == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, current, next)
	}

	if (next == domain.ParcelDelivered || next == domain.ParcelReturned) && !amount.IsPositive() {
		return false, fmt.Errorf("%w: %s requires an amount", ErrAmountRequired, next)
	}
	return true, nil
}

func IsParcelStatus(status string) bool {
	switch status {
	case domain.ParcelProcessing, domain.ParcelSent, domain.ParcelDelivered, domain.ParcelReturned:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition leaves status.
func IsTerminal(status string) bool {
	return status == domain.ParcelDelivered || status == domain.ParcelReturned
}
