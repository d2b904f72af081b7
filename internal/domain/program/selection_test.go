package program_test

import (
	"testing"

	"campus/internal/domain/program"
)

func assign(id, name string, order int, isDefault bool) program.Assignment {
	return program.Assignment{
		UserID:    "user-1",
		Program:   program.Program{ID: id, Name: name, Code: id, Status: program.StatusActive, DisplayOrder: order},
		IsDefault: isDefault,
	}
}

// TestPrograms_Ordering tests that the derived list is sorted by display order then name.
func TestPrograms_Ordering(t *testing.T) {
	assignments := []program.Assignment{
		assign("c", "Coding", 2, false),
		assign("a", "Arts", 1, false),
		assign("b", "Ballet", 1, false),
	}
	got := program.Programs(assignments)
	wantOrder := []string{"a", "b", "c"}
	if len(got) != len(wantOrder) {
		t.Fatalf("expected %d programs, got %d", len(wantOrder), len(got))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

// TestDefaultProgram_FlagWins tests that the IsDefault flag beats list order.
func TestDefaultProgram_FlagWins(t *testing.T) {
	assignments := []program.Assignment{
		assign("a", "a", 1, false),
		assign("b", "b", 2, true),
		assign("c", "c", 3, false),
	}
	got, ok := program.DefaultProgram(assignments)
	if !ok {
		t.Fatal("expected a default program")
	}
	if got.ID != "b" {
		t.Errorf("expected flagged program b, got %s", got.ID)
	}
}

// TestDefaultProgram_NoFlagFallsBackToOrder tests fallback to first in display order.
func TestDefaultProgram_NoFlagFallsBackToOrder(t *testing.T) {
	assignments := []program.Assignment{
		assign("c", "c", 3, false),
		assign("a", "a", 1, false),
		assign("b", "b", 2, false),
	}
	got, ok := program.DefaultProgram(assignments)
	if !ok {
		t.Fatal("expected a default program")
	}
	if got.ID != "a" {
		t.Errorf("expected first-in-order program a, got %s", got.ID)
	}
}

// TestDefaultProgram_Empty tests that no assignments yields no default.
func TestDefaultProgram_Empty(t *testing.T) {
	if _, ok := program.DefaultProgram(nil); ok {
		t.Error("expected no default from empty assignment list")
	}
}

// TestReconcile_KeepsAccessibleSelection tests that a still-valid selection survives.
func TestReconcile_KeepsAccessibleSelection(t *testing.T) {
	assignments := []program.Assignment{
		assign("a", "a", 1, true),
		assign("b", "b", 2, false),
	}
	got, ok := program.Reconcile("b", assignments)
	if !ok {
		t.Fatal("expected a reconciled program")
	}
	if got.ID != "b" {
		t.Errorf("expected selection b to survive, got %s", got.ID)
	}
}

// TestReconcile_StaleSelectionRedefaults tests that a revoked selection falls back to the default.
func TestReconcile_StaleSelectionRedefaults(t *testing.T) {
	assignments := []program.Assignment{
		assign("a", "a", 1, false),
		assign("b", "b", 2, true),
	}
	got, ok := program.Reconcile("gone", assignments)
	if !ok {
		t.Fatal("expected a reconciled program")
	}
	if got.ID != "b" {
		t.Errorf("expected default program b, got %s", got.ID)
	}
}

// TestReconcile_NoAssignments tests that reconciliation with no assignments yields nothing.
func TestReconcile_NoAssignments(t *testing.T) {
	if _, ok := program.Reconcile("a", nil); ok {
		t.Error("expected no program from empty assignment list")
	}
}
