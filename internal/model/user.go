package model

import "time"

// SignupCreditGrant is the credit balance given to every newly created
// account, whichever door it arrives through (signup, OAuth, or first
// authenticated request). Earlier revisions disagreed between 5 and 10;
// 10 is the deliberate choice, set in exactly one place.
const SignupCreditGrant = 10

// User represents a registered account.
//
// Users arrive through two doors: email/password signup ("local" provider)
// or GitHub OAuth ("github" provider). Either way we generate our own
// internal string ID (xid) so primary keys never depend on a third party's
// numbering scheme.
//
// WHY GitHubID int64?
// GitHub user IDs are integers. Using int64 avoids overflow for large
// account numbers. It is zero for local accounts; the DB's unique index
// ensures one GitHub account maps to exactly one app account.
//
// WHY Credits ON THE USER ROW?
// Credits are a single non-negative counter consumed one per generation.
// Keeping the counter on the user row lets the debit be a single
// conditional UPDATE — no separate ledger table, no read-then-write race.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	Name         string    `json:"name"      db:"name"`
	ImageURL     string    `json:"imageUrl"  db:"image_url"`
	Provider     string    `json:"provider"  db:"provider"`  // "local" or "github"
	GitHubID     int64     `json:"-"         db:"github_id"` // 0 for local accounts
	PasswordHash string    `json:"-"         db:"password_hash"`
	Credits      int       `json:"credits"   db:"credits"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
