package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ssujit905/Inventory-sub001/internal/store"
)

func TestConflictOnSerializationMapsRaceAborts(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		raw := fmt.Errorf("insert sale line: %w", &pgconn.PgError{Code: code})
		err := conflictOnSerialization(raw)
		if !errors.Is(err, store.ErrStockConflict) {
			t.Fatalf("code %s: expected stock conflict, got %v", code, err)
		}
	}
}

func TestConflictOnSerializationLeavesOtherErrors(t *testing.T) {
	if err := conflictOnSerialization(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	unique := &pgconn.PgError{Code: "23505"}
	if err := conflictOnSerialization(unique); err != error(unique) {
		t.Fatalf("expected unique violation untouched, got %v", err)
	}

	insufficient := fmt.Errorf("lot L1: %w", store.ErrInsufficientStock)
	if err := conflictOnSerialization(insufficient); err != insufficient {
		t.Fatalf("expected insufficient stock untouched, got %v", err)
	}

	conflict := fmt.Errorf("%w: lot L1 has 0", store.ErrStockConflict)
	if err := conflictOnSerialization(conflict); err != conflict {
		t.Fatalf("expected existing conflict untouched, got %v", err)
	}
}
