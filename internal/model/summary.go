// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other
// languages, but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Summary represents a stored AI-generated summary of a video transcript.
//
// STRUCTURED FIELDS, NOT A TEXT BLOB:
// Title, KeyPoints, and FullSummary are stored as separate columns
// (KeyPoints as a JSON array). An earlier design flattened everything into
// one text blob and re-parsed it with pattern matching on read — a lossy
// round-trip that broke on titles containing newlines and points containing
// dashes. Structured storage makes the write→read round trip exact.
//
// VideoRef is the external identifier/URL of the source video. It doubles
// as the dedup key: a summary generated once is served from the store to
// EVERY user who asks for the same video — a deliberate global cache, not
// a per-user one.
type Summary struct {
	ID          string    `json:"id"          db:"id"`
	UserID      string    `json:"userId"      db:"user_id"`
	VideoRef    string    `json:"videoRef"    db:"video_ref"`
	Content     string    `json:"content,omitempty" db:"content"` // raw transcript, may be empty
	Title       string    `json:"title"       db:"title"`
	KeyPoints   []string  `json:"keyPoints"   db:"key_points"`
	FullSummary string    `json:"fullSummary" db:"full_summary"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}
