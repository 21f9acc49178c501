// Package store provides persistence for the reference engine: entities,
// aliases, documents with numbered versions, reference sets, extraction
// candidates and cached text metrics.
package store

import "errors"

// ErrAliasExists is returned when an alias normalizes to a surface already
// registered for the same project.
var ErrAliasExists = errors.New("alias already exists")

// Entity is a named thing in a project: a character, a place, a faction.
type Entity struct {
	ID        int64  `json:"id"`
	Project   string `json:"project"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	CreatedAt int64  `json:"createdAt"`
}

// Alias is an alternate surface form for an entity. Every entity gets a
// primary alias equal to its name at creation time. Norm is the canonical
// lowercased whitespace-collapsed form used for dedup and matching.
type Alias struct {
	ID       int64  `json:"id"`
	EntityID int64  `json:"entityId"`
	Text     string `json:"text"`
	Norm     string `json:"norm"`
	Primary  bool   `json:"primary"`
	Active   bool   `json:"active"`
}

// AliasRow is the flat row the phrase index is built from: one row per
// active alias, plus one per entity title. Title rows carry AliasID 0.
type AliasRow struct {
	Text     string
	EntityID int64
	AliasID  int64
}

// Document is a writing unit: a chapter, a scene, a note.
type Document struct {
	ID        int64  `json:"id"`
	Project   string `json:"project"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
}

// Version is one numbered snapshot of a document's text. Number starts at 1
// and only grows. Hash is the content hash of the snapshot.
type Version struct {
	DocumentID int64  `json:"documentId"`
	Number     int    `json:"number"`
	Content    string `json:"content"`
	Hash       string `json:"hash"`
	CreatedAt  int64  `json:"createdAt"`
}

// Candidate statuses. A candidate keeps its status across re-extraction.
const (
	CandidatePending   = "pending"
	CandidateAccepted  = "accepted"
	CandidateDismissed = "dismissed"
	CandidateLinked    = "linked"
)

// Candidate is a surface the extractor proposed as a possible new entity.
// The identity key is (project, scope type, scope id, version, surface):
// re-extracting the same text updates scores and offsets but never touches
// a status the user already set.
type Candidate struct {
	ID         int64   `json:"id"`
	Project    string  `json:"project"`
	ScopeType  string  `json:"scopeType"` // "document"
	ScopeID    int64   `json:"scopeId"`
	Version    int     `json:"version"`
	Surface    string  `json:"surface"`
	Kind       string  `json:"kind"`
	Source     string  `json:"source"` // "ner", "heuristic", "chunk", "quick"
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Status     string  `json:"status"`
	EntityID   int64   `json:"entityId"` // set when status is "linked"
	CreatedAt  int64   `json:"createdAt"`
	UpdatedAt  int64   `json:"updatedAt"`
}

// Metrics is the cached measurement of one text snapshot, keyed by its
// content hash.
type Metrics struct {
	Hash           string  `json:"hash"`
	Words          int     `json:"words"`
	Chars          int     `json:"chars"`
	Sentences      int     `json:"sentences"`
	Paragraphs     int     `json:"paragraphs"`
	AvgSentenceLen float64 `json:"avgSentenceLen"`
	TypeTokenRatio float64 `json:"typeTokenRatio"`
	DialogueWords  int     `json:"dialogueWords"`
	DialogueRatio  float64 `json:"dialogueRatio"`
	ReadingSeconds int     `json:"readingSeconds"`
	Pages          float64 `json:"pages"`
	ComputedAt     int64   `json:"computedAt"`
}
