// Package summarizer turns a raw video transcript into a structured summary
// (title, key points, full summary) by calling an external chat-completion
// API and parsing its free-text reply.
//
// THE CONTRACT, DECIDED ONCE:
// Generate returns EITHER a structured *Result OR a non-nil error — never a
// "successful" placeholder payload with an apology baked into the summary
// text. Callers handle exactly one failure channel: the error, which wraps
// apperror.ErrUpstream when the external API is the cause.
//
// The transport (Client) is an interface so tests inject a canned reply and
// the service never needs network access.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/recap/internal/apperror"
)

// MaxContentLength bounds the transcript we are willing to send upstream.
// ~200KB of text is far beyond any sane single-video transcript and keeps a
// hostile client from shipping us a novel per request.
const MaxContentLength = 200000

// defaultTimeout caps the external model call. The generative API is the
// dominant latency source of the whole system and has no guaranteed upper
// bound of its own, so we impose one.
const defaultTimeout = 60 * time.Second

// Message is one turn of a chat-completion conversation.
// Role is "system", "user", or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the transport to a chat-completion API.
// OpenRouterClient is the production implementation; tests use a fake.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// SourceInfo describes the video a transcript came from. Title feeds the
// prompt and serves as the fallback result title; VideoID/URL are carried
// for logging only.
type SourceInfo struct {
	Title   string
	VideoID string
	URL     string
}

// Result is the structured outcome of a successful generation.
type Result struct {
	Title       string   `json:"title"`
	KeyPoints   []string `json:"keyPoints"`
	FullSummary string   `json:"fullSummary"`
}

// Service orchestrates prompt construction, the API call, and response
// parsing.
type Service struct {
	client  Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewService creates a Service with the default external-call timeout.
func NewService(client Client, logger *slog.Logger) *Service {
	return &Service{
		client:  client,
		logger:  logger,
		timeout: defaultTimeout,
	}
}

// NewServiceWithTimeout creates a Service with a custom timeout.
// Used in tests to make the deadline observable without waiting a minute.
func NewServiceWithTimeout(client Client, logger *slog.Logger, timeout time.Duration) *Service {
	return &Service{
		client:  client,
		logger:  logger,
		timeout: timeout,
	}
}

// systemPrompt pins the model to the exact layout parseResponse expects.
const systemPrompt = `You are an assistant that summarizes video transcripts.
Always respond in exactly this format:

TITLE: <a concise title for the video>

KEY POINTS:
- <first key point>
- <second key point>
- <third key point>

SUMMARY:
<one or two paragraphs summarizing the transcript>

Use 3 to 5 key points. Do not add any other sections.`

// Generate produces a structured summary for the given transcript.
//
// Returns a validation error for blank content (before any API call), an
// upstream error if the external API fails, and a *Result otherwise.
func (s *Service) Generate(ctx context.Context, content string, src SourceInfo) (*Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperror.ValidationFailed("content", "transcript content is required")
	}
	if len(content) > MaxContentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("transcript must be %d characters or less", MaxContentLength))
	}

	// Cap the external call — see defaultTimeout.
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.client.Complete(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(src.Title, content)},
	})
	if err != nil {
		s.logger.Error("summarizer: model API call failed",
			slog.String("videoID", src.VideoID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("summary generation failed: the summarization service is unavailable")
	}

	result := parseResponse(raw, src.Title)

	s.logger.Info("summary generated",
		slog.String("videoID", src.VideoID),
		slog.Int("keyPoints", len(result.KeyPoints)),
		slog.Int("responseChars", len(raw)),
		slog.Duration("duration", time.Since(start)),
	)

	return &result, nil
}

// buildPrompt embeds the video title and transcript into the fixed user
// prompt template.
func buildPrompt(title, content string) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "Video title: %s\n\n", title)
	}
	b.WriteString("Summarize the following transcript:\n\n")
	b.WriteString(content)
	return b.String()
}

// parseResponse extracts the structured fields from the model's free-text
// reply.
//
// EXPECTED SHAPE (see systemPrompt):
//
//	TITLE: ...
//	KEY POINTS:
//	- ...
//	SUMMARY:
//	...
//
// Models mostly comply but never reliably, so every marker is optional:
//   - no TITLE line   → fall back to the source video title
//   - no KEY POINTS / SUMMARY markers → the ENTIRE reply becomes the full
//     summary and the key points list is empty. A degraded-but-usable
//     result beats a parse error for free text we don't control.
//
// Marker matching is case-insensitive; bullets accept "-" and "*".
func parseResponse(raw, fallbackTitle string) Result {
	result := Result{
		Title:     fallbackTitle,
		KeyPoints: []string{},
	}

	trimmed := strings.TrimSpace(raw)
	upper := strings.ToUpper(trimmed)

	// TITLE: line, anywhere before the key points section.
	for _, line := range strings.Split(trimmed, "\n") {
		if t, ok := cutLabel(line, "TITLE"); ok && t != "" {
			result.Title = t
			break
		}
	}

	kpIdx := strings.Index(upper, "KEY POINTS")
	if kpIdx < 0 {
		result.FullSummary = trimmed
		return result
	}

	// The SUMMARY marker must come AFTER the key points section — a stray
	// "summary" in the title line must not truncate the points.
	sumOff := strings.Index(upper[kpIdx:], "SUMMARY")
	if sumOff < 0 {
		result.FullSummary = trimmed
		return result
	}

	pointsSection := trimmed[kpIdx : kpIdx+sumOff]
	summarySection := trimmed[kpIdx+sumOff:]

	for _, line := range strings.Split(pointsSection, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "- "); ok {
			line = after
		} else if after, ok := strings.CutPrefix(line, "* "); ok {
			line = after
		} else {
			continue // the "KEY POINTS:" label line, blanks, stragglers
		}
		if point := strings.TrimSpace(line); point != "" {
			result.KeyPoints = append(result.KeyPoints, point)
		}
	}

	// Drop the "SUMMARY:" label itself; the prose is everything after it.
	if _, after, found := strings.Cut(summarySection, ":"); found {
		summarySection = after
	} else if _, after, found := strings.Cut(summarySection, "\n"); found {
		summarySection = after
	}
	result.FullSummary = strings.TrimSpace(summarySection)

	// Nothing salvageable after the marker → same fallback as no markers.
	if result.FullSummary == "" && len(result.KeyPoints) == 0 {
		result.FullSummary = trimmed
	}

	return result
}

// cutLabel matches "LABEL: value" case-insensitively and returns the
// trimmed value.
func cutLabel(line, label string) (string, bool) {
	line = strings.TrimSpace(line)
	if len(line) < len(label)+1 {
		return "", false
	}
	if !strings.EqualFold(line[:len(label)], label) {
		return "", false
	}
	rest := strings.TrimSpace(line[len(label):])
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	return strings.TrimSpace(rest[1:]), true
}
