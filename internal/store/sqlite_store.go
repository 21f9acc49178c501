// SQLite-backed Storer using ncruces/go-sqlite3/driver, which provides a
// database/sql interface over a wazero-compiled sqlite.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/storyarkivist/refengine/pkg/textnorm"
)

// SQLiteStore is the SQLite-backed data store.
// Thread-safe for concurrent callers.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// schema defines all tables for the reference engine.
const schema = `
CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project TEXT NOT NULL,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_project ON entities(project);

CREATE TABLE IF NOT EXISTS aliases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL,
    text TEXT NOT NULL,
    norm TEXT NOT NULL,
    is_primary INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_aliases_entity ON aliases(entity_id);
CREATE INDEX IF NOT EXISTS idx_aliases_norm ON aliases(norm) WHERE active = 1;

CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project TEXT NOT NULL,
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project);

CREATE TABLE IF NOT EXISTS versions (
    document_id INTEGER NOT NULL,
    number INTEGER NOT NULL,
    content TEXT NOT NULL,
    hash TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (document_id, number)
);

CREATE TABLE IF NOT EXISTS version_refs (
    document_id INTEGER NOT NULL,
    version INTEGER NOT NULL,
    entity_id INTEGER NOT NULL,
    PRIMARY KEY (document_id, version, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_version_refs_entity ON version_refs(entity_id);

CREATE TABLE IF NOT EXISTS document_refs (
    document_id INTEGER NOT NULL,
    entity_id INTEGER NOT NULL,
    PRIMARY KEY (document_id, entity_id)
);
CREATE INDEX IF NOT EXISTS idx_document_refs_entity ON document_refs(entity_id);

CREATE TABLE IF NOT EXISTS candidates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project TEXT NOT NULL,
    scope_type TEXT NOT NULL,
    scope_id INTEGER NOT NULL,
    version INTEGER NOT NULL,
    surface TEXT NOT NULL,
    kind TEXT NOT NULL,
    source TEXT NOT NULL,
    confidence REAL NOT NULL,
    start INTEGER NOT NULL,
    "end" INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    entity_id INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE (project, scope_type, scope_id, version, surface)
);
CREATE INDEX IF NOT EXISTS idx_candidates_scope ON candidates(scope_type, scope_id, version);

CREATE TABLE IF NOT EXISTS metrics_cache (
    hash TEXT PRIMARY KEY,
    words INTEGER NOT NULL,
    chars INTEGER NOT NULL,
    sentences INTEGER NOT NULL,
    paragraphs INTEGER NOT NULL,
    avg_sentence_len REAL NOT NULL,
    type_token_ratio REAL NOT NULL,
    dialogue_words INTEGER NOT NULL,
    dialogue_ratio REAL NOT NULL,
    reading_seconds INTEGER NOT NULL,
    pages REAL NOT NULL,
    computed_at INTEGER NOT NULL
);
`

// NewSQLiteStore opens an in-memory database, mostly useful for tests and
// short-lived tooling.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN opens or creates the database at the given DSN.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteStore) CreateEntity(project, name, kind string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm := textnorm.NormalizePhrase(name)
	taken, err := s.aliasTaken(project, norm, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrAliasExists
	}

	now := time.Now().UnixMilli()
	res, err := s.db.Exec(
		`INSERT INTO entities (project, name, kind, created_at) VALUES (?, ?, ?, ?)`,
		project, name, kind, now,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(
		`INSERT INTO aliases (entity_id, text, norm, is_primary, active) VALUES (?, ?, ?, 1, 1)`,
		id, name, norm,
	); err != nil {
		return nil, err
	}
	return &Entity{ID: id, Project: project, Name: name, Kind: kind, CreatedAt: now}, nil
}

// aliasTaken checks for an active alias with the same norm in the project,
// excluding the given entity. Caller holds the lock.
func (s *SQLiteStore) aliasTaken(project, norm string, entityID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM aliases a
		JOIN entities e ON e.id = a.entity_id
		WHERE a.active = 1 AND a.norm = ? AND e.project = ? AND a.entity_id != ?
	`, norm, project, entityID).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) GetEntity(id int64) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e Entity
	err := s.db.QueryRow(
		`SELECT id, project, name, kind, created_at FROM entities WHERE id = ?`, id,
	).Scan(&e.ID, &e.Project, &e.Name, &e.Kind, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) ListEntities(project string) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, project, name, kind, created_at FROM entities WHERE project = ? ORDER BY id`,
		project,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Project, &e.Name, &e.Kind, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddAlias(entityID int64, text string) (*Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var project string
	err := s.db.QueryRow(`SELECT project FROM entities WHERE id = ?`, entityID).Scan(&project)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	norm := textnorm.NormalizePhrase(text)
	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM aliases WHERE entity_id = ? AND active = 1 AND norm = ?`,
		entityID, norm,
	).Scan(&n); err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrAliasExists
	}
	taken, err := s.aliasTaken(project, norm, entityID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrAliasExists
	}

	res, err := s.db.Exec(
		`INSERT INTO aliases (entity_id, text, norm, is_primary, active) VALUES (?, ?, ?, 0, 1)`,
		entityID, text, norm,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Alias{ID: id, EntityID: entityID, Text: text, Norm: norm, Active: true}, nil
}

func (s *SQLiteStore) SetAliasActive(aliasID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := 0
	if active {
		v = 1
	}
	_, err := s.db.Exec(`UPDATE aliases SET active = ? WHERE id = ?`, v, aliasID)
	return err
}

func (s *SQLiteStore) ListAliases(entityID int64) ([]*Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, entity_id, text, norm, is_primary, active FROM aliases WHERE entity_id = ? ORDER BY id`,
		entityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Alias
	for rows.Next() {
		var a Alias
		var primary, active int
		if err := rows.Scan(&a.ID, &a.EntityID, &a.Text, &a.Norm, &primary, &active); err != nil {
			return nil, err
		}
		a.Primary = primary != 0
		a.Active = active != 0
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ActiveAliasRows(project string) ([]AliasRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT e.name, e.id, 0 FROM entities e WHERE e.project = ?
		UNION ALL
		SELECT a.text, a.entity_id, a.id FROM aliases a
		JOIN entities e ON e.id = a.entity_id
		WHERE e.project = ? AND a.active = 1 AND a.is_primary = 0
		ORDER BY 2, 3
	`, project, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AliasRow
	for rows.Next() {
		var r AliasRow
		if err := rows.Scan(&r.Text, &r.EntityID, &r.AliasID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateDocument(project, title string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	res, err := s.db.Exec(
		`INSERT INTO documents (project, title, created_at) VALUES (?, ?, ?)`,
		project, title, now,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Document{ID: id, Project: project, Title: title, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetDocument(id int64) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d Document
	err := s.db.QueryRow(
		`SELECT id, project, title, created_at FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Project, &d.Title, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) SaveVersion(docID int64, content, hash string) (*Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE id = ?`, docID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, nil
	}

	var number int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(number), 0) + 1 FROM versions WHERE document_id = ?`, docID,
	).Scan(&number); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	if _, err := s.db.Exec(
		`INSERT INTO versions (document_id, number, content, hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		docID, number, content, hash, now,
	); err != nil {
		return nil, err
	}
	return &Version{DocumentID: docID, Number: number, Content: content, Hash: hash, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetVersion(docID int64, number int) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanVersion(s.db.QueryRow(
		`SELECT document_id, number, content, hash, created_at FROM versions WHERE document_id = ? AND number = ?`,
		docID, number,
	))
}

func (s *SQLiteStore) LatestVersion(docID int64) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanVersion(s.db.QueryRow(
		`SELECT document_id, number, content, hash, created_at FROM versions
		 WHERE document_id = ? ORDER BY number DESC LIMIT 1`,
		docID,
	))
}

func (s *SQLiteStore) scanVersion(row *sql.Row) (*Version, error) {
	var v Version
	err := row.Scan(&v.DocumentID, &v.Number, &v.Content, &v.Hash, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *SQLiteStore) ReplaceVersionReferences(docID int64, version int, entityIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM version_refs WHERE document_id = ? AND version = ?`, docID, version,
	); err != nil {
		return err
	}
	for _, id := range dedupSorted(entityIDs) {
		if _, err := tx.Exec(
			`INSERT INTO version_refs (document_id, version, entity_id) VALUES (?, ?, ?)`,
			docID, version, id,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) VersionReferences(docID int64, version int) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryIDs(
		`SELECT entity_id FROM version_refs WHERE document_id = ? AND version = ? ORDER BY entity_id`,
		docID, version,
	)
}

func (s *SQLiteStore) ReplaceDocumentReferences(docID int64, entityIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM document_refs WHERE document_id = ?`, docID); err != nil {
		return err
	}
	for _, id := range dedupSorted(entityIDs) {
		if _, err := tx.Exec(
			`INSERT INTO document_refs (document_id, entity_id) VALUES (?, ?)`, docID, id,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DocumentReferences(docID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryIDs(
		`SELECT entity_id FROM document_refs WHERE document_id = ? ORDER BY entity_id`, docID,
	)
}

func (s *SQLiteStore) DocumentsReferencing(entityID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryIDs(
		`SELECT document_id FROM document_refs WHERE entity_id = ? ORDER BY document_id`, entityID,
	)
}

func (s *SQLiteStore) queryIDs(query string, args ...any) ([]int64, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertCandidate(c *Candidate) (*Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	status := c.Status
	if status == "" {
		status = CandidatePending
	}
	if _, err := s.db.Exec(`
		INSERT INTO candidates
			(project, scope_type, scope_id, version, surface, kind, source,
			 confidence, start, "end", status, entity_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (project, scope_type, scope_id, version, surface) DO UPDATE SET
			kind = excluded.kind,
			source = excluded.source,
			confidence = excluded.confidence,
			start = excluded.start,
			"end" = excluded."end",
			updated_at = excluded.updated_at
	`, c.Project, c.ScopeType, c.ScopeID, c.Version, c.Surface, c.Kind, c.Source,
		c.Confidence, c.Start, c.End, status, now, now); err != nil {
		return nil, err
	}

	return s.getCandidateByKey(c)
}

func (s *SQLiteStore) getCandidateByKey(key *Candidate) (*Candidate, error) {
	return s.scanCandidate(s.db.QueryRow(`
		SELECT id, project, scope_type, scope_id, version, surface, kind, source,
		       confidence, start, "end", status, entity_id, created_at, updated_at
		FROM candidates
		WHERE project = ? AND scope_type = ? AND scope_id = ? AND version = ? AND surface = ?
	`, key.Project, key.ScopeType, key.ScopeID, key.Version, key.Surface))
}

func (s *SQLiteStore) GetCandidate(id int64) (*Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanCandidate(s.db.QueryRow(`
		SELECT id, project, scope_type, scope_id, version, surface, kind, source,
		       confidence, start, "end", status, entity_id, created_at, updated_at
		FROM candidates WHERE id = ?
	`, id))
}

func (s *SQLiteStore) scanCandidate(row *sql.Row) (*Candidate, error) {
	var c Candidate
	err := row.Scan(&c.ID, &c.Project, &c.ScopeType, &c.ScopeID, &c.Version, &c.Surface,
		&c.Kind, &c.Source, &c.Confidence, &c.Start, &c.End, &c.Status, &c.EntityID,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) CandidatesByScope(project, scopeType string, scopeID int64, version int) ([]*Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, project, scope_type, scope_id, version, surface, kind, source,
		       confidence, start, "end", status, entity_id, created_at, updated_at
		FROM candidates
		WHERE project = ? AND scope_type = ? AND scope_id = ? AND version = ?
		ORDER BY start, id
	`, project, scopeType, scopeID, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.Project, &c.ScopeType, &c.ScopeID, &c.Version, &c.Surface,
			&c.Kind, &c.Source, &c.Confidence, &c.Start, &c.End, &c.Status, &c.EntityID,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetCandidateStatus(id int64, status string, entityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`UPDATE candidates SET status = ?, entity_id = ?, updated_at = ? WHERE id = ?`,
		status, entityID, time.Now().UnixMilli(), id,
	)
	return err
}

func (s *SQLiteStore) PutMetrics(m *Metrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO metrics_cache
			(hash, words, chars, sentences, paragraphs, avg_sentence_len, type_token_ratio,
			 dialogue_words, dialogue_ratio, reading_seconds, pages, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hash) DO UPDATE SET
			words = excluded.words,
			chars = excluded.chars,
			sentences = excluded.sentences,
			paragraphs = excluded.paragraphs,
			avg_sentence_len = excluded.avg_sentence_len,
			type_token_ratio = excluded.type_token_ratio,
			dialogue_words = excluded.dialogue_words,
			dialogue_ratio = excluded.dialogue_ratio,
			reading_seconds = excluded.reading_seconds,
			pages = excluded.pages,
			computed_at = excluded.computed_at
	`, m.Hash, m.Words, m.Chars, m.Sentences, m.Paragraphs, m.AvgSentenceLen, m.TypeTokenRatio,
		m.DialogueWords, m.DialogueRatio, m.ReadingSeconds, m.Pages, m.ComputedAt)
	return err
}

func (s *SQLiteStore) GetMetrics(hash string) (*Metrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m Metrics
	err := s.db.QueryRow(`
		SELECT hash, words, chars, sentences, paragraphs, avg_sentence_len, type_token_ratio,
		       dialogue_words, dialogue_ratio, reading_seconds, pages, computed_at
		FROM metrics_cache WHERE hash = ?
	`, hash).Scan(&m.Hash, &m.Words, &m.Chars, &m.Sentences, &m.Paragraphs,
		&m.AvgSentenceLen, &m.TypeTokenRatio, &m.DialogueWords, &m.DialogueRatio,
		&m.ReadingSeconds, &m.Pages, &m.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
