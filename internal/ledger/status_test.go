package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
)

func TestTransition(t *testing.T) {
	cases := []struct {
		name    string
		from    string
		to      string
		amount  decimal.Decimal
		changed bool
		err     error
	}{
		{name: "processing to sent", from: domain.ParcelProcessing, to: domain.ParcelSent, changed: true},
		{name: "sent to delivered", from: domain.ParcelSent, to: domain.ParcelDelivered, amount: dec("50"), changed: true},
		{name: "processing to returned", from: domain.ParcelProcessing, to: domain.ParcelReturned, amount: dec("8"), changed: true},
		{name: "sent to returned", from: domain.ParcelSent, to: domain.ParcelReturned, amount: dec("8"), changed: true},
		{name: "same state is a no-op", from: domain.ParcelDelivered, to: domain.ParcelDelivered},
		{name: "delivered without amount", from: domain.ParcelSent, to: domain.ParcelDelivered, err: ErrAmountRequired},
		{name: "returned with negative amount", from: domain.ParcelSent, to: domain.ParcelReturned, amount: dec("-1"), err: ErrAmountRequired},
		{name: "processing straight to delivered", from: domain.ParcelProcessing, to: domain.ParcelDelivered, amount: dec("5"), err: ErrInvalidStateTransition},
		{name: "backwards", from: domain.ParcelSent, to: domain.ParcelProcessing, err: ErrInvalidStateTransition},
		{name: "out of terminal", from: domain.ParcelDelivered, to: domain.ParcelReturned, amount: dec("1"), err: ErrInvalidStateTransition},
		{name: "unknown status", from: domain.ParcelSent, to: "lost", err: ErrInvalidStateTransition},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			changed, err := Transition(tc.from, tc.to, tc.amount)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				assert.False(t, changed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.changed, changed)
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(domain.ParcelDelivered))
	assert.True(t, IsTerminal(domain.ParcelReturned))
	assert.False(t, IsTerminal(domain.ParcelSent))
}
