package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		unique bool
		slot   bool
	}{
		{"active slot index", &pgconn.PgError{Code: "23505", ConstraintName: activeSlotConstraint}, true, true},
		{"wrapped active slot index", fmt.Errorf("insert appointment: %w", &pgconn.PgError{Code: "23505", ConstraintName: activeSlotConstraint}), true, true},
		{"other unique index", &pgconn.PgError{Code: "23505", ConstraintName: "appointments_pkey"}, true, false},
		{"check violation", &pgconn.PgError{Code: "23514", ConstraintName: activeSlotConstraint}, false, false},
		{"plain error", errors.New("boom"), false, false},
		{"nil", nil, false, false},
	}
	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.unique {
			t.Fatalf("%s: IsUniqueViolation = %v, want %v", tc.name, got, tc.unique)
		}
		if got := isSlotViolation(tc.err); got != tc.slot {
			t.Fatalf("%s: isSlotViolation = %v, want %v", tc.name, got, tc.slot)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("get appointment: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to be not found")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatal("unexpected not found")
	}
}
