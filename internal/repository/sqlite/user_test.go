package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/recap/internal/apperror"
	"github.com/sakif/recap/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// Using ":memory:" creates a fresh database that exists only during the test.
// Benefits:
// - Fast: no disk I/O
// - Isolated: each test gets its own database
// - Clean: automatically destroyed when the connection closes
//
// newTestDB is a "test helper" — a function used only in tests to reduce boilerplate.
// The `t.Helper()` call tells Go's test framework to report errors at the CALLER's
// line number, not inside this function. This makes test failure output much clearer.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	// t.Cleanup registers a function to run when the test finishes.
	// This is like defer, but scoped to the test — even works in subtests.
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates a user with the given email and credit balance.
func createTestUser(t *testing.T, db *DB, email string, credits int) *model.User {
	t.Helper()
	user := &model.User{
		Email:    email,
		Name:     "Test User",
		Provider: "local",
		Credits:  credits,
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Email:    "alice@example.com",
		Name:     "Alice",
		Provider: "local",
		Credits:  model.SignupCreditGrant,
	}

	err := db.CreateUser(context.Background(), user)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Verify the user was modified in-place (pointer receiver!)
	if user.ID == "" {
		t.Error("Create() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Create() did not set user.CreatedAt")
	}

	// Read it back through the store
	got, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "alice@example.com")
	}
	if got.Credits != model.SignupCreditGrant {
		t.Errorf("Credits = %d, want %d", got.Credits, model.SignupCreditGrant)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)

	createTestUser(t, db, "dupe@example.com", 10)

	err := db.CreateUser(context.Background(), &model.User{
		Email:    "dupe@example.com",
		Name:     "Someone Else",
		Provider: "local",
	})
	if err == nil {
		t.Fatal("Create() should fail for a duplicate email")
	}
	// The caller needs ErrConflict specifically so it can respond 409
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Create() error = %v, want ErrConflict", err)
	}
}

// =========================================================================
// GET TESTS
// =========================================================================

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "no-such-user")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	db := newTestDB(t)

	created := createTestUser(t, db, "bob@example.com", 5)

	got, err := db.GetUserByEmail(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("GetByEmail() ID = %q, want %q", got.ID, created.ID)
	}
}

func TestGetUserByGitHubID(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		Email:    "gh@example.com",
		Name:     "GH User",
		Provider: "github",
		GitHubID: 424242,
		Credits:  10,
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := db.GetUserByGitHubID(context.Background(), 424242)
	if err != nil {
		t.Fatalf("GetByGitHubID() error = %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("GetByGitHubID() ID = %q, want %q", got.ID, user.ID)
	}

	// github_id 0 means "no linked GitHub account" — looking it up must
	// never match the local-provider rows that all carry 0.
	createTestUser(t, db, "local@example.com", 10)
	_, err = db.GetUserByGitHubID(context.Background(), 0)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByGitHubID(0) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPSERT TESTS — the auth gate's directory sync
// =========================================================================

func TestUpsert_InsertsNewUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		ID:       "token-user-1",
		Email:    "new@example.com",
		Name:     "New User",
		Provider: "github",
		Credits:  model.SignupCreditGrant,
	}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := db.GetUserByID(context.Background(), "token-user-1")
	if err != nil {
		t.Fatalf("GetByID() after upsert error = %v", err)
	}
	if got.Credits != model.SignupCreditGrant {
		t.Errorf("new user Credits = %d, want the signup grant %d", got.Credits, model.SignupCreditGrant)
	}
}

func TestUpsert_UpdatePreservesCredits(t *testing.T) {
	db := newTestDB(t)

	// First sync creates the user with the grant
	if err := db.Upsert(context.Background(), &model.User{
		ID:       "token-user-2",
		Email:    "sync@example.com",
		Name:     "Original Name",
		Provider: "github",
		Credits:  model.SignupCreditGrant,
	}); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}

	// Spend some credits between syncs
	if err := db.DebitCredit(context.Background(), "token-user-2"); err != nil {
		t.Fatalf("DebitCredit() error = %v", err)
	}

	// Second sync carries the grant again (the gate always does) but must
	// only refresh the profile, never the balance
	if err := db.Upsert(context.Background(), &model.User{
		ID:       "token-user-2",
		Email:    "sync@example.com",
		Name:     "Renamed",
		ImageURL: "https://img.example.com/new.png",
		Provider: "github",
		Credits:  model.SignupCreditGrant,
	}); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	got, err := db.GetUserByID(context.Background(), "token-user-2")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("Name = %q, want %q (profile should update)", got.Name, "Renamed")
	}
	if got.Credits != model.SignupCreditGrant-1 {
		t.Errorf("Credits = %d, want %d (sync must not reset the balance)",
			got.Credits, model.SignupCreditGrant-1)
	}
}

// =========================================================================
// DEBIT TESTS — the credit ledger
// =========================================================================

func TestDebitCredit(t *testing.T) {
	db := newTestDB(t)

	user := createTestUser(t, db, "spender@example.com", 3)

	if err := db.DebitCredit(context.Background(), user.ID); err != nil {
		t.Fatalf("DebitCredit() error = %v", err)
	}

	got, _ := db.GetUserByID(context.Background(), user.ID)
	if got.Credits != 2 {
		t.Errorf("Credits after debit = %d, want 2", got.Credits)
	}
}

func TestDebitCredit_Exhausted(t *testing.T) {
	db := newTestDB(t)

	user := createTestUser(t, db, "broke@example.com", 1)

	// First debit drains the balance
	if err := db.DebitCredit(context.Background(), user.ID); err != nil {
		t.Fatalf("first DebitCredit() error = %v", err)
	}

	// Second debit must fail — and must NOT take the balance below zero
	err := db.DebitCredit(context.Background(), user.ID)
	if !errors.Is(err, apperror.ErrInsufficientCredits) {
		t.Errorf("DebitCredit() on empty balance error = %v, want ErrInsufficientCredits", err)
	}

	got, _ := db.GetUserByID(context.Background(), user.ID)
	if got.Credits != 0 {
		t.Errorf("Credits = %d, want 0 (balance must never go negative)", got.Credits)
	}
}

func TestDebitCredit_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	err := db.DebitCredit(context.Background(), "ghost")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DebitCredit() for missing user error = %v, want ErrNotFound", err)
	}
}
