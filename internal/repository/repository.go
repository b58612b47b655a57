package repository

import (
	"context"

	"github.com/sakif/recap/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository is the user directory plus the credit ledger.
//
// Upsert synchronizes a user record from identity-provider output: it
// creates the user (with the signup credit grant) on first authentication,
// and on subsequent authentications updates only the mutable profile
// fields — name, image, provider — never the credit balance.
//
// DebitCredit is the one write the credit ledger needs: a single
// conditional decrement ("subtract 1 where balance >= 1"). It returns
// apperror.ErrInsufficientCredits when the balance is exhausted. Making
// the condition part of the UPDATE eliminates the classic check-then-act
// race where two concurrent requests both observe balance=1.
// The user methods carry a User suffix so the sqlite implementation — one
// flat DB type backing both repositories — doesn't collide with the summary
// methods of the same shape.
type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	DebitCredit(ctx context.Context, userID string) error
}

// SummaryRepository persists generated summaries.
//
// GetByVideoRef is the global cache lookup: it is keyed by source video
// only, NOT by owner, so a summary generated by one user is returned to
// every user who requests the same video.
//
// GetByID and Delete are owner-scoped: a row that exists but belongs to
// someone else behaves exactly like a row that does not exist. Callers can
// never distinguish "not yours" from "not there".
//
// CreateWithDebit inserts the summary and debits one credit from its owner
// in a single transaction, so a billed generation can never be lost and a
// failed write can never charge.
type SummaryRepository interface {
	Create(ctx context.Context, summary *model.Summary) error
	CreateWithDebit(ctx context.Context, summary *model.Summary) error
	GetByID(ctx context.Context, id, ownerID string) (*model.Summary, error)
	GetByVideoRef(ctx context.Context, videoRef string) (*model.Summary, error)
	ListByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]model.Summary, int, error)
	Delete(ctx context.Context, id, ownerID string) error
}
