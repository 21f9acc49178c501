// Package engine is the top-level entity-reference engine: it owns the
// store, keeps per-project alias indexes and content-hash caches, and
// exposes the reconciliation, extraction and metrics operations the
// editor calls.
package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/storyarkivist/refengine/internal/store"
	"github.com/storyarkivist/refengine/pkg/extract"
	"github.com/storyarkivist/refengine/pkg/index"
	"github.com/storyarkivist/refengine/pkg/match"
	"github.com/storyarkivist/refengine/pkg/metrics"
	"github.com/storyarkivist/refengine/pkg/textnorm"
)

// ActiveVersion selects the latest saved version of a document.
const ActiveVersion = 0

// ScopeDocument is the candidate scope for whole-document extraction runs.
const ScopeDocument = "document"

// Config tunes the engine. Zero values get sensible defaults.
type Config struct {
	Tagger    extract.Tagger
	Extractor extract.Options
	Logger    *zap.Logger

	IndexCacheSize   int // per-project alias indexes
	RefsCacheSize    int // reference sets keyed by content hash
	MetricsCacheSize int // metric results keyed by content hash
}

// Engine coordinates the store, the alias index and the extractor.
type Engine struct {
	store     store.Storer
	extractor *extract.Extractor
	log       *zap.Logger

	idxCache     *lru.Cache[string, *index.Index]
	refsCache    *lru.Cache[string, []int64]
	metricsCache *lru.Cache[string, *store.Metrics]
}

// New builds an engine over the given store.
func New(st store.Storer, cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.IndexCacheSize <= 0 {
		cfg.IndexCacheSize = 16
	}
	if cfg.RefsCacheSize <= 0 {
		cfg.RefsCacheSize = 512
	}
	if cfg.MetricsCacheSize <= 0 {
		cfg.MetricsCacheSize = 512
	}

	idxCache, err := lru.New[string, *index.Index](cfg.IndexCacheSize)
	if err != nil {
		return nil, err
	}
	refsCache, err := lru.New[string, []int64](cfg.RefsCacheSize)
	if err != nil {
		return nil, err
	}
	metricsCache, err := lru.New[string, *store.Metrics](cfg.MetricsCacheSize)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:        st,
		extractor:    extract.New(cfg.Tagger, cfg.Extractor, cfg.Logger),
		log:          cfg.Logger,
		idxCache:     idxCache,
		refsCache:    refsCache,
		metricsCache: metricsCache,
	}, nil
}

// Store exposes the underlying Storer for read paths the engine does not
// wrap.
func (e *Engine) Store() store.Storer { return e.store }

// ---------------------------------------------------------------------------
// Entities and aliases
// ---------------------------------------------------------------------------

// CreateEntity registers an entity; its name becomes the primary alias.
func (e *Engine) CreateEntity(project, name, kind string) (*store.Entity, error) {
	if textnorm.NormalizePhrase(name) == "" {
		return nil, ErrBlankSurface
	}
	ent, err := e.store.CreateEntity(project, name, kind)
	if err != nil {
		return nil, err
	}
	e.invalidateProject(project)
	e.log.Debug("entity created",
		zap.String("project", project), zap.Int64("entity", ent.ID), zap.String("name", name))
	return ent, nil
}

// AddAlias attaches a surface to an entity.
func (e *Engine) AddAlias(entityID int64, text string) (*store.Alias, error) {
	if textnorm.NormalizePhrase(text) == "" {
		return nil, ErrBlankSurface
	}
	ent, err := e.store.GetEntity(entityID)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, ErrNotFound
	}
	alias, err := e.store.AddAlias(entityID, text)
	if err != nil {
		return nil, err
	}
	e.invalidateProject(ent.Project)
	return alias, nil
}

// RetireAlias deactivates an alias without deleting its history.
func (e *Engine) RetireAlias(project string, aliasID int64) error {
	if err := e.store.SetAliasActive(aliasID, false); err != nil {
		return err
	}
	e.invalidateProject(project)
	return nil
}

// PhraseIndex returns the cached alias index for a project, building it
// from the store on a miss.
func (e *Engine) PhraseIndex(project string) (*index.Index, error) {
	if idx, ok := e.idxCache.Get(project); ok {
		return idx, nil
	}
	rows, err := e.store.ActiveAliasRows(project)
	if err != nil {
		return nil, err
	}
	irows := make([]index.Row, len(rows))
	for i, r := range rows {
		irows[i] = index.Row{Text: r.Text, EntityID: r.EntityID, AliasID: r.AliasID}
	}
	idx := index.Build(irows)
	e.idxCache.Add(project, idx)
	return idx, nil
}

// invalidateProject drops every cache derived from the project's alias
// set. Metric caches survive: they depend only on text.
func (e *Engine) invalidateProject(project string) {
	e.idxCache.Remove(project)
	prefix := project + "\x00"
	for _, k := range e.refsCache.Keys() {
		if strings.HasPrefix(k, prefix) {
			e.refsCache.Remove(k)
		}
	}
}

// ---------------------------------------------------------------------------
// Reference reconciliation
// ---------------------------------------------------------------------------

// RecomputeReferences re-resolves the reference set of one stored version
// and persists it, replacing the old set. Version 0 means the latest
// version; reconciling the latest also mirrors the set to the document
// level. A missing document or version returns ErrNotFound and writes
// nothing.
func (e *Engine) RecomputeReferences(project string, docID int64, version int) ([]int64, error) {
	doc, err := e.store.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}

	var ver *store.Version
	if version == ActiveVersion {
		ver, err = e.store.LatestVersion(docID)
	} else {
		ver, err = e.store.GetVersion(docID, version)
	}
	if err != nil {
		return nil, err
	}
	if ver == nil {
		return nil, fmt.Errorf("document %d version %d: %w", docID, version, ErrNotFound)
	}

	refs, err := e.resolveReferences(project, ver.Content, ver.Hash)
	if err != nil {
		return nil, err
	}

	if err := e.store.ReplaceVersionReferences(docID, ver.Number, refs); err != nil {
		return nil, err
	}
	latest, err := e.store.LatestVersion(docID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Number == ver.Number {
		if err := e.store.ReplaceDocumentReferences(docID, refs); err != nil {
			return nil, err
		}
	}

	e.log.Debug("references reconciled",
		zap.Int64("doc", docID), zap.Int("version", ver.Number), zap.Int("refs", len(refs)))
	return refs, nil
}

// ResolveText resolves references for unsaved text without persisting
// anything. Editors use this for live highlighting of a dirty buffer.
func (e *Engine) ResolveText(project, text string) ([]int64, error) {
	return e.resolveReferences(project, text, textnorm.ContentHash(text))
}

func (e *Engine) resolveReferences(project, text, hash string) ([]int64, error) {
	key := project + "\x00" + hash
	if refs, ok := e.refsCache.Get(key); ok {
		return refs, nil
	}

	idx, err := e.PhraseIndex(project)
	if err != nil {
		return nil, err
	}
	phrases := match.Prefilter(text, idx.Phrases())
	refs := match.Find(text, phrases)

	e.refsCache.Add(key, refs)
	return refs, nil
}

// FindMentions returns every resolved phrase occurrence in text with its
// offsets, for highlighting.
func (e *Engine) FindMentions(project, text string) ([]match.Match, error) {
	idx, err := e.PhraseIndex(project)
	if err != nil {
		return nil, err
	}
	return match.FindDetailed(text, match.Prefilter(text, idx.Phrases())), nil
}

// QuickScan runs the automaton preview over raw text. Approximate by
// design; see index.QuickScan.
func (e *Engine) QuickScan(project, text string) ([]index.Hit, error) {
	idx, err := e.PhraseIndex(project)
	if err != nil {
		return nil, err
	}
	return idx.QuickScan(text), nil
}

// ---------------------------------------------------------------------------
// Candidate extraction
// ---------------------------------------------------------------------------

// RecomputeCandidates extracts new-entity candidates from a stored version
// and upserts them. Statuses set by the user on earlier runs survive. The
// returned slice is the full candidate list for the scope, ordered by
// offset. Degraded reports whether the tagger failed.
func (e *Engine) RecomputeCandidates(project string, docID int64, version int) ([]*store.Candidate, bool, error) {
	doc, err := e.store.GetDocument(docID)
	if err != nil {
		return nil, false, err
	}
	if doc == nil {
		return nil, false, fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}

	var ver *store.Version
	if version == ActiveVersion {
		ver, err = e.store.LatestVersion(docID)
	} else {
		ver, err = e.store.GetVersion(docID, version)
	}
	if err != nil {
		return nil, false, err
	}
	if ver == nil {
		return nil, false, fmt.Errorf("document %d version %d: %w", docID, version, ErrNotFound)
	}

	idx, err := e.PhraseIndex(project)
	if err != nil {
		return nil, false, err
	}
	res := e.extractor.Extract(ver.Content, idx.Phrases())

	for _, c := range res.Candidates {
		if _, err := e.store.UpsertCandidate(&store.Candidate{
			Project:    project,
			ScopeType:  ScopeDocument,
			ScopeID:    docID,
			Version:    ver.Number,
			Surface:    strings.TrimSpace(c.Surface),
			Kind:       c.Kind,
			Source:     c.Source,
			Confidence: c.Confidence,
			Start:      c.Start,
			End:        c.End,
		}); err != nil {
			return nil, res.Degraded, err
		}
	}

	all, err := e.store.CandidatesByScope(project, ScopeDocument, docID, ver.Number)
	return all, res.Degraded, err
}

// QuickCandidates runs only the cheap heuristic pass over unsaved text.
// Nothing is persisted; the editor shows these inline as the user types.
func (e *Engine) QuickCandidates(project, text string) ([]extract.Candidate, error) {
	idx, err := e.PhraseIndex(project)
	if err != nil {
		return nil, err
	}
	return extract.Quick(text, idx.Phrases()), nil
}

// AcceptCandidate promotes a candidate into a full entity. kind overrides
// the candidate's guess when non-empty.
func (e *Engine) AcceptCandidate(candID int64, kind string) (*store.Entity, error) {
	c, err := e.store.GetCandidate(candID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("candidate %d: %w", candID, ErrNotFound)
	}
	if kind == "" {
		kind = c.Kind
	}
	if kind == "" {
		kind = "concept"
	}

	ent, err := e.CreateEntity(c.Project, c.Surface, kind)
	if err != nil {
		return nil, err
	}
	if err := e.store.SetCandidateStatus(candID, store.CandidateAccepted, ent.ID); err != nil {
		return nil, err
	}
	return ent, nil
}

// LinkCandidate records a candidate as an alias of an existing entity.
// A surface the entity already carries is fine; the link still sticks.
func (e *Engine) LinkCandidate(candID, entityID int64) error {
	c, err := e.store.GetCandidate(candID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("candidate %d: %w", candID, ErrNotFound)
	}
	ent, err := e.store.GetEntity(entityID)
	if err != nil {
		return err
	}
	if ent == nil {
		return fmt.Errorf("entity %d: %w", entityID, ErrNotFound)
	}

	if _, err := e.AddAlias(entityID, c.Surface); err != nil && !errors.Is(err, store.ErrAliasExists) {
		return err
	}
	return e.store.SetCandidateStatus(candID, store.CandidateLinked, entityID)
}

// DismissCandidate hides a candidate from future review without
// forgetting it: re-extraction will not resurface it as new.
func (e *Engine) DismissCandidate(candID int64) error {
	c, err := e.store.GetCandidate(candID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("candidate %d: %w", candID, ErrNotFound)
	}
	return e.store.SetCandidateStatus(candID, store.CandidateDismissed, 0)
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// Metrics returns the prose statistics for a stored version, computing and
// caching them by content hash on first sight. Version 0 means latest.
func (e *Engine) Metrics(docID int64, version int) (*store.Metrics, error) {
	var ver *store.Version
	var err error
	if version == ActiveVersion {
		ver, err = e.store.LatestVersion(docID)
	} else {
		ver, err = e.store.GetVersion(docID, version)
	}
	if err != nil {
		return nil, err
	}
	if ver == nil {
		return nil, fmt.Errorf("document %d version %d: %w", docID, version, ErrNotFound)
	}
	return e.metricsForText(ver.Content, ver.Hash)
}

// MetricsForText measures arbitrary text through the same caches.
func (e *Engine) MetricsForText(text string) (*store.Metrics, error) {
	return e.metricsForText(text, textnorm.ContentHash(text))
}

func (e *Engine) metricsForText(text, hash string) (*store.Metrics, error) {
	if m, ok := e.metricsCache.Get(hash); ok {
		return m, nil
	}
	if m, err := e.store.GetMetrics(hash); err != nil {
		return nil, err
	} else if m != nil {
		e.metricsCache.Add(hash, m)
		return m, nil
	}

	r := metrics.Compute(text)
	m := &store.Metrics{
		Hash:           hash,
		Words:          r.Words,
		Chars:          r.Chars,
		Sentences:      r.Sentences,
		Paragraphs:     r.Paragraphs,
		AvgSentenceLen: r.AvgSentenceLen,
		TypeTokenRatio: r.TypeTokenRatio,
		DialogueWords:  r.DialogueWords,
		DialogueRatio:  r.DialogueRatio,
		ReadingSeconds: r.ReadingSeconds,
		Pages:          r.Pages,
		ComputedAt:     nowMillis(),
	}
	if err := e.store.PutMetrics(m); err != nil {
		return nil, err
	}
	e.metricsCache.Add(hash, m)
	return m, nil
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

func nowMillis() int64 { return time.Now().UnixMilli() }

// SaveDraft stores a new version of a document, hashing the content, and
// reconciles its references in the same step.
func (e *Engine) SaveDraft(project string, docID int64, content string) (*store.Version, []int64, error) {
	ver, err := e.store.SaveVersion(docID, content, textnorm.ContentHash(content))
	if err != nil {
		return nil, nil, err
	}
	if ver == nil {
		return nil, nil, fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}
	refs, err := e.RecomputeReferences(project, docID, ver.Number)
	if err != nil {
		return nil, nil, err
	}
	return ver, refs, nil
}
