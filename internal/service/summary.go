package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/recap/internal/apperror"
	"github.com/sakif/recap/internal/model"
	"github.com/sakif/recap/internal/repository"
	"github.com/sakif/recap/internal/summarizer"
)

// Pagination limits for summary listings.
const (
	DefaultPageSize = 10
	MaxPageSize     = 50
	MaxVideoRefLen  = 2048 // generous for any URL
	MaxTitleLen     = 300
)

// Generator is the slice of the summarizer the service needs.
// An interface (rather than *summarizer.Service directly) so tests can
// assert "the external API was never called" with a counting fake.
type Generator interface {
	Generate(ctx context.Context, content string, src summarizer.SourceInfo) (*summarizer.Result, error)
}

// SummaryService orchestrates the generate/save/list/get/delete workflow
// around the summary store, the credit ledger, and the summarizer.
type SummaryService struct {
	summaries repository.SummaryRepository
	users     repository.UserRepository
	generator Generator
	logger    *slog.Logger
}

// NewSummaryService creates a SummaryService.
func NewSummaryService(
	summaries repository.SummaryRepository,
	users repository.UserRepository,
	generator Generator,
	logger *slog.Logger,
) *SummaryService {
	return &SummaryService{
		summaries: summaries,
		users:     users,
		generator: generator,
		logger:    logger,
	}
}

// GenerateResult is the outcome of a generation request.
//
// Cached tells the caller whether the summary came from the global cache
// (free) or a fresh model call (one credit). RemainingCredits is the
// caller's balance after the request.
type GenerateResult struct {
	Summary          *model.Summary
	Cached           bool
	RemainingCredits int
}

// Generate is the core workflow of the whole application:
//
//	validate → global cache lookup → credit pre-check → model call →
//	transactional persist+debit → result
//
// ORDER MATTERS:
//   - The cache lookup comes FIRST: an already-summarized video is served
//     to any user without touching the Summarizer or the ledger.
//   - The pre-check comes BEFORE the model call: a broke user must not
//     cost us an upstream API invocation that can never be billed.
//   - The debit and the insert are one transaction (CreateWithDebit); the
//     pre-check is an optimisation, the transaction is the guarantee. Two
//     concurrent requests spending the last credit both pass the pre-check
//     but only one survives the conditional debit.
//
// KNOWN, ACCEPTED RACE: two concurrent FIRST requests for the same video
// both miss the cache and both pay for a real generation. The cost is a
// duplicate billed row, not corruption, so we don't serialize it.
func (s *SummaryService) Generate(ctx context.Context, userID, videoRef, title, content string) (*GenerateResult, error) {
	videoRef = strings.TrimSpace(videoRef)
	title = strings.TrimSpace(title)

	if userID == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	if videoRef == "" {
		return nil, apperror.ValidationFailed("videoRef", "video reference is required")
	}
	if len(videoRef) > MaxVideoRefLen {
		return nil, apperror.ValidationFailed("videoRef",
			fmt.Sprintf("video reference must be %d characters or less", MaxVideoRefLen))
	}
	if len(title) > MaxTitleLen {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLen))
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperror.ValidationFailed("content", "transcript content is required")
	}

	// --- Global cache lookup ---
	cached, err := s.summaries.GetByVideoRef(ctx, videoRef)
	if err == nil {
		s.logger.Info("summary cache hit",
			slog.String("videoRef", videoRef),
			slog.String("summaryID", cached.ID),
			slog.String("requestedBy", userID),
		)
		user, err := s.users.GetUserByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("service/summary: fetching balance for user %s: %w", userID, err)
		}
		return &GenerateResult{
			Summary:          cached,
			Cached:           true,
			RemainingCredits: user.Credits,
		}, nil
	}
	if !isNotFound(err) {
		// A real store failure, not a cache miss. Do NOT fall through to a
		// fresh (billed) generation on a broken store.
		return nil, fmt.Errorf("service/summary: cache lookup for %s: %w", videoRef, err)
	}

	// --- Credit pre-check ---
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/summary: fetching user %s: %w", userID, err)
	}
	if user.Credits < 1 {
		return nil, apperror.InsufficientCredits()
	}

	// --- External generation ---
	result, err := s.generator.Generate(ctx, content, summarizer.SourceInfo{
		Title:   title,
		VideoID: videoRef,
		URL:     videoRef,
	})
	if err != nil {
		// Nothing was charged and nothing was stored.
		return nil, err
	}

	// --- Atomic persist + debit ---
	summary := &model.Summary{
		UserID:      userID,
		VideoRef:    videoRef,
		Content:     content,
		Title:       result.Title,
		KeyPoints:   result.KeyPoints,
		FullSummary: result.FullSummary,
	}
	if err := s.summaries.CreateWithDebit(ctx, summary); err != nil {
		// Includes losing the last-credit race: the generation happened
		// but the caller is not charged and nothing is stored.
		return nil, fmt.Errorf("service/summary: persisting summary for %s: %w", videoRef, err)
	}

	s.logger.Info("summary generated and charged",
		slog.String("summaryID", summary.ID),
		slog.String("videoRef", videoRef),
		slog.String("userID", userID),
		slog.Int("remainingCredits", user.Credits-1),
	)

	return &GenerateResult{
		Summary:          summary,
		Cached:           false,
		RemainingCredits: user.Credits - 1,
	}, nil
}

// Save persists a client-supplied, already-generated summary.
// No Summarizer call, no credit charge.
func (s *SummaryService) Save(ctx context.Context, userID, videoRef, title string, keyPoints []string, fullSummary, content string) (*model.Summary, error) {
	videoRef = strings.TrimSpace(videoRef)
	title = strings.TrimSpace(title)

	if userID == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	if videoRef == "" {
		return nil, apperror.ValidationFailed("videoRef", "video reference is required")
	}
	if strings.TrimSpace(fullSummary) == "" {
		return nil, apperror.ValidationFailed("fullSummary", "summary text is required")
	}
	if len(title) > MaxTitleLen {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLen))
	}

	summary := &model.Summary{
		UserID:      userID,
		VideoRef:    videoRef,
		Content:     content,
		Title:       title,
		KeyPoints:   keyPoints,
		FullSummary: fullSummary,
	}
	if err := s.summaries.Create(ctx, summary); err != nil {
		return nil, fmt.Errorf("service/summary: saving summary for %s: %w", videoRef, err)
	}

	s.logger.Info("summary saved",
		slog.String("summaryID", summary.ID),
		slog.String("videoRef", videoRef),
		slog.String("userID", userID),
	)

	return summary, nil
}

// List returns one page of the caller's summaries, newest first, plus the
// total count. Pages are 1-based.
func (s *SummaryService) List(ctx context.Context, userID string, page, pageSize int) ([]model.Summary, int, error) {
	if userID == "" {
		return nil, 0, apperror.Unauthorized("valid authentication required")
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	summaries, total, err := s.summaries.ListByOwner(ctx, userID, repository.ListOptions{
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("service/summary: listing summaries: %w", err)
	}

	return summaries, total, nil
}

// Get fetches one of the caller's summaries by ID.
// Someone else's summary is indistinguishable from a nonexistent one.
func (s *SummaryService) Get(ctx context.Context, id, userID string) (*model.Summary, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "summary ID is required")
	}
	if userID == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}

	return s.summaries.GetByID(ctx, id, userID)
}

// Delete removes one of the caller's summaries.
// Same ownership semantics as Get.
func (s *SummaryService) Delete(ctx context.Context, id, userID string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "summary ID is required")
	}
	if userID == "" {
		return apperror.Unauthorized("valid authentication required")
	}

	if err := s.summaries.Delete(ctx, id, userID); err != nil {
		return err
	}

	s.logger.Info("summary deleted",
		slog.String("summaryID", id),
		slog.String("userID", userID),
	)
	return nil
}
