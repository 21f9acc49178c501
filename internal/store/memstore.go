// This file contains the interface and in-memory implementation for testing.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/storyarkivist/refengine/pkg/textnorm"
)

// Storer defines the interface for data persistence.
// This allows swapping between MemStore (testing) and SQLiteStore (production).
type Storer interface {
	// Entities and aliases
	CreateEntity(project, name, kind string) (*Entity, error)
	GetEntity(id int64) (*Entity, error)
	ListEntities(project string) ([]*Entity, error)
	AddAlias(entityID int64, text string) (*Alias, error)
	SetAliasActive(aliasID int64, active bool) error
	ListAliases(entityID int64) ([]*Alias, error)
	ActiveAliasRows(project string) ([]AliasRow, error)

	// Documents and versions
	CreateDocument(project, title string) (*Document, error)
	GetDocument(id int64) (*Document, error)
	SaveVersion(docID int64, content, hash string) (*Version, error)
	GetVersion(docID int64, number int) (*Version, error)
	LatestVersion(docID int64) (*Version, error)

	// Reference sets
	ReplaceVersionReferences(docID int64, version int, entityIDs []int64) error
	VersionReferences(docID int64, version int) ([]int64, error)
	ReplaceDocumentReferences(docID int64, entityIDs []int64) error
	DocumentReferences(docID int64) ([]int64, error)
	DocumentsReferencing(entityID int64) ([]int64, error)

	// Candidates
	UpsertCandidate(c *Candidate) (*Candidate, error)
	GetCandidate(id int64) (*Candidate, error)
	CandidatesByScope(project, scopeType string, scopeID int64, version int) ([]*Candidate, error)
	SetCandidateStatus(id int64, status string, entityID int64) error

	// Metrics cache
	PutMetrics(m *Metrics) error
	GetMetrics(hash string) (*Metrics, error)

	// Lifecycle
	Close() error
}

// MemStore is an in-memory implementation of Storer for testing.
type MemStore struct {
	mu         sync.RWMutex
	nextID     int64
	entities   map[int64]*Entity
	aliases    map[int64]*Alias
	documents  map[int64]*Document
	versions   map[int64][]*Version // docID -> versions ordered by number
	verRefs    map[int64]map[int][]int64
	docRefs    map[int64][]int64
	candidates map[int64]*Candidate
	metrics    map[string]*Metrics
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		entities:   make(map[int64]*Entity),
		aliases:    make(map[int64]*Alias),
		documents:  make(map[int64]*Document),
		versions:   make(map[int64][]*Version),
		verRefs:    make(map[int64]map[int][]int64),
		docRefs:    make(map[int64][]int64),
		candidates: make(map[int64]*Candidate),
		metrics:    make(map[string]*Metrics),
	}
}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

// CreateEntity registers an entity and its primary alias in one step.
func (m *MemStore) CreateEntity(project, name, kind string) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	norm := textnorm.NormalizePhrase(name)
	if m.aliasTaken(project, norm, 0) {
		return nil, ErrAliasExists
	}

	e := &Entity{
		ID:        m.id(),
		Project:   project,
		Name:      name,
		Kind:      kind,
		CreatedAt: time.Now().UnixMilli(),
	}
	m.entities[e.ID] = e
	a := &Alias{
		ID:       m.id(),
		EntityID: e.ID,
		Text:     name,
		Norm:     norm,
		Primary:  true,
		Active:   true,
	}
	m.aliases[a.ID] = a
	return e, nil
}

// aliasTaken reports whether norm is already used by an active alias of any
// entity in the project other than entityID. Caller holds the lock.
func (m *MemStore) aliasTaken(project, norm string, entityID int64) bool {
	for _, a := range m.aliases {
		if !a.Active || a.Norm != norm {
			continue
		}
		e := m.entities[a.EntityID]
		if e != nil && e.Project == project && a.EntityID != entityID {
			return true
		}
	}
	return false
}

func (m *MemStore) GetEntity(id int64) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *MemStore) ListEntities(project string) ([]*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Entity
	for _, e := range m.entities {
		if e.Project == project {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddAlias attaches a secondary surface to an entity. A surface whose
// normalized form is already live in the project is rejected, even if it
// belongs to the same entity.
func (m *MemStore) AddAlias(entityID int64, text string) (*Alias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entities[entityID]
	if !ok {
		return nil, nil
	}
	norm := textnorm.NormalizePhrase(text)
	for _, a := range m.aliases {
		if a.Active && a.Norm == norm && a.EntityID == entityID {
			return nil, ErrAliasExists
		}
	}
	if m.aliasTaken(e.Project, norm, entityID) {
		return nil, ErrAliasExists
	}

	a := &Alias{
		ID:       m.id(),
		EntityID: entityID,
		Text:     text,
		Norm:     norm,
		Active:   true,
	}
	m.aliases[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *MemStore) SetAliasActive(aliasID int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.aliases[aliasID]; ok {
		a.Active = active
	}
	return nil
}

func (m *MemStore) ListAliases(entityID int64) ([]*Alias, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Alias
	for _, a := range m.aliases {
		if a.EntityID == entityID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ActiveAliasRows returns the rows the phrase index consumes: every active
// alias in the project plus a title row per entity. Title rows use AliasID 0
// so matches can be attributed to the entity name rather than an alias.
func (m *MemStore) ActiveAliasRows(project string) ([]AliasRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []AliasRow
	for _, e := range m.entities {
		if e.Project == project {
			rows = append(rows, AliasRow{Text: e.Name, EntityID: e.ID})
		}
	}
	for _, a := range m.aliases {
		if !a.Active || a.Primary {
			continue
		}
		e := m.entities[a.EntityID]
		if e != nil && e.Project == project {
			rows = append(rows, AliasRow{Text: a.Text, EntityID: a.EntityID, AliasID: a.ID})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].EntityID != rows[j].EntityID {
			return rows[i].EntityID < rows[j].EntityID
		}
		return rows[i].AliasID < rows[j].AliasID
	})
	return rows, nil
}

func (m *MemStore) CreateDocument(project, title string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &Document{
		ID:        m.id(),
		Project:   project,
		Title:     title,
		CreatedAt: time.Now().UnixMilli(),
	}
	m.documents[d.ID] = d
	cp := *d
	return &cp, nil
}

func (m *MemStore) GetDocument(id int64) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

// SaveVersion appends a new numbered snapshot. Numbers start at 1.
func (m *MemStore) SaveVersion(docID int64, content, hash string) (*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[docID]; !ok {
		return nil, nil
	}
	v := &Version{
		DocumentID: docID,
		Number:     len(m.versions[docID]) + 1,
		Content:    content,
		Hash:       hash,
		CreatedAt:  time.Now().UnixMilli(),
	}
	m.versions[docID] = append(m.versions[docID], v)
	cp := *v
	return &cp, nil
}

func (m *MemStore) GetVersion(docID int64, number int) (*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.versions[docID]
	if number < 1 || number > len(vs) {
		return nil, nil
	}
	cp := *vs[number-1]
	return &cp, nil
}

func (m *MemStore) LatestVersion(docID int64) (*Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.versions[docID]
	if len(vs) == 0 {
		return nil, nil
	}
	cp := *vs[len(vs)-1]
	return &cp, nil
}

// ReplaceVersionReferences swaps the full reference set for one version.
// Old rows are dropped, never merged.
func (m *MemStore) ReplaceVersionReferences(docID int64, version int, entityIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byVer, ok := m.verRefs[docID]
	if !ok {
		byVer = make(map[int][]int64)
		m.verRefs[docID] = byVer
	}
	byVer[version] = dedupSorted(entityIDs)
	return nil
}

func (m *MemStore) VersionReferences(docID int64, version int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := m.verRefs[docID][version]
	out := make([]int64, len(refs))
	copy(out, refs)
	return out, nil
}

func (m *MemStore) ReplaceDocumentReferences(docID int64, entityIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docRefs[docID] = dedupSorted(entityIDs)
	return nil
}

func (m *MemStore) DocumentReferences(docID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refs := m.docRefs[docID]
	out := make([]int64, len(refs))
	copy(out, refs)
	return out, nil
}

// DocumentsReferencing is the reverse lookup over document-level sets.
func (m *MemStore) DocumentsReferencing(entityID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int64
	for docID, refs := range m.docRefs {
		for _, id := range refs {
			if id == entityID {
				out = append(out, docID)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func candidateKeyEqual(a, b *Candidate) bool {
	return a.Project == b.Project &&
		a.ScopeType == b.ScopeType &&
		a.ScopeID == b.ScopeID &&
		a.Version == b.Version &&
		a.Surface == b.Surface
}

// UpsertCandidate inserts a candidate or, when its identity key already
// exists, refreshes kind, source, confidence and offsets while leaving
// status and any linked entity untouched.
func (m *MemStore) UpsertCandidate(c *Candidate) (*Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UnixMilli()
	for _, existing := range m.candidates {
		if candidateKeyEqual(existing, c) {
			existing.Kind = c.Kind
			existing.Source = c.Source
			existing.Confidence = c.Confidence
			existing.Start = c.Start
			existing.End = c.End
			existing.UpdatedAt = now
			cp := *existing
			return &cp, nil
		}
	}

	ins := *c
	ins.ID = m.id()
	if ins.Status == "" {
		ins.Status = CandidatePending
	}
	ins.CreatedAt = now
	ins.UpdatedAt = now
	m.candidates[ins.ID] = &ins
	cp := ins
	return &cp, nil
}

func (m *MemStore) GetCandidate(id int64) (*Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.candidates[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *MemStore) CandidatesByScope(project, scopeType string, scopeID int64, version int) ([]*Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Candidate
	for _, c := range m.candidates {
		if c.Project == project && c.ScopeType == scopeType && c.ScopeID == scopeID && c.Version == version {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) SetCandidateStatus(id int64, status string, entityID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok {
		return nil
	}
	c.Status = status
	c.EntityID = entityID
	c.UpdatedAt = time.Now().UnixMilli()
	return nil
}

func (m *MemStore) PutMetrics(mt *Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mt
	m.metrics[mt.Hash] = &cp
	return nil
}

func (m *MemStore) GetMetrics(hash string) (*Metrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.metrics[hash]
	if !ok {
		return nil, nil
	}
	cp := *mt
	return &cp, nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

func dedupSorted(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}
