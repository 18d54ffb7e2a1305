// Package coldstore implements the Cold Store (§4.7): durable, queryable
// memory of past outcomes across three named collections — test_success,
// bug_fixes, and hitl_annotations. It is backed by SQLite (modernc.org's
// pure-Go driver by default, or mattn/go-sqlite3's cgo driver when
// configured) and degrades to empty search results rather than ever
// blocking the pipeline on a storage failure.
package coldstore

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"kaya/internal/config"
	"kaya/internal/logging"
)

// Collection names (§4.7).
const (
	CollectionTestSuccess    = "test_success"
	CollectionBugFixes       = "bug_fixes"
	CollectionHITLAnnotation = "hitl_annotations"
)

// Result is one hit from Search.
type Result struct {
	ID         string                 `json:"id"`
	Collection string                 `json:"collection"`
	Text       string                 `json:"text"`
	Metadata   map[string]interface{} `json:"metadata"`
	Similarity float64                `json:"similarity"`
}

// Store is the Cold Store service.
type Store struct {
	db            *sql.DB
	mu            sync.RWMutex
	emb           *embedder
	vectorExt     bool
	minSimilarity float64
	defaultK      int
	log           *logging.Logger
}

// New opens (creating if necessary) the SQLite database at cfg.ColdStorePath
// and prepares its schema. A failure to open the database is returned to
// the caller — Kaya can still run with HITL/metrics disabled rather than
// feature-flagging the whole pipeline, but the caller decides that; once
// open, Search itself never surfaces storage errors (§4.7).
func New(cfg config.StoreConfig) (*Store, error) {
	log := logging.Get(logging.CategoryColdStore)

	path := cfg.ColdStorePath
	if path != "" && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating cold store directory: %w", err)
			}
		}
	}

	driver := "sqlite"
	if cfg.ColdStoreUseCGO {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening cold store database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite writers serialize regardless; keep it explicit.

	s := &Store{
		db:            db,
		emb:           newEmbedder(),
		minSimilarity: cfg.ColdStoreMinSimilarity,
		defaultK:      cfg.ColdStoreDefaultK,
		log:           log,
	}
	if s.minSimilarity <= 0 {
		s.minSimilarity = 0.7
	}
	if s.defaultK <= 0 {
		s.defaultK = 5
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cold store schema: %w", err)
	}
	s.detectVecExtension()
	if s.vectorExt {
		log.Info("sqlite-vec extension detected and enabled for ANN search")
	} else {
		log.Warn("sqlite-vec extension not available; falling back to brute-force cosine search")
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT NOT NULL,
		collection TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
	`
	_, err := s.db.Exec(schema)
	return err
}

// detectVecExtension probes for the sqlite-vec extension (auto-loaded via
// vec.Auto() in vec_ext.go under the mattn/go-sqlite3 cgo driver) by
// attempting to create a vec0 virtual table. modernc.org/sqlite is pure Go
// and cannot load it at all, so this is expected to fail there; failure
// just means Search runs brute-force instead.
func (s *Store) detectVecExtension() {
	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS vec_index USING vec0(embedding float[%d], ref_key TEXT)", embeddingDimensions)
	if _, err := s.db.Exec(stmt); err != nil {
		s.vectorExt = false
		return
	}
	s.vectorExt = true
}

// Store upserts a record into collection under id, embedding text for later
// similarity search. Satisfies the ColdStore interface the HITL Queue and
// the Scribe/Medic workers depend on.
func (s *Store) Store(collection, id, text string, metadata map[string]interface{}) error {
	vec := s.emb.embed(text)
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal cold store metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO records (id, collection, text, embedding, metadata) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET text=excluded.text, embedding=excluded.embedding, metadata=excluded.metadata`,
		id, collection, text, encodeVector(vec), string(metaJSON),
	)
	if err != nil {
		s.log.Error("failed to store record %s/%s: %v", collection, id, err)
		return fmt.Errorf("storing cold store record: %w", err)
	}

	if s.vectorExt {
		refKey := collection + ":" + id
		if _, vErr := s.db.Exec(
			`INSERT INTO vec_index (embedding, ref_key) VALUES (?, ?)`,
			encodeVector(vec), refKey,
		); vErr != nil {
			s.log.Warn("failed to mirror %s into sqlite-vec index: %v", refKey, vErr)
		}
	}

	return nil
}

// Search returns up to k records from collection most similar to queryText,
// filtered to similarity >= minSimilarity (the store-wide default when <=0).
// Search never returns an error: a storage failure logs a warning and
// yields an empty result set, per §4.7's requirement that a degraded Cold
// Store must never block the pipeline.
func (s *Store) Search(collection, queryText string, k int, minSimilarity float64) []Result {
	if k <= 0 {
		k = s.defaultK
	}
	if minSimilarity <= 0 {
		minSimilarity = s.minSimilarity
	}
	queryVec := s.emb.embed(queryText)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectorExt {
		if results, err := s.searchANN(collection, queryVec, k, minSimilarity); err == nil {
			return results
		} else {
			s.log.Warn("sqlite-vec ANN search failed for collection %s, falling back to brute-force: %v", collection, err)
		}
	}

	results, err := s.searchBruteForce(collection, queryVec, k, minSimilarity)
	if err != nil {
		s.log.Warn("cold store search failed for collection %s, degrading to empty results: %v", collection, err)
		return nil
	}
	return results
}

// searchANN queries vec_index for the nearest neighbors of queryVec,
// restricted to ref_keys prefixed with collection, then hydrates text and
// metadata from records.
func (s *Store) searchANN(collection string, queryVec []float32, k int, minSimilarity float64) ([]Result, error) {
	prefix := collection + ":"
	rows, err := s.db.Query(
		`SELECT ref_key, vec_distance_cosine(embedding, ?) AS dist FROM vec_index
		 WHERE ref_key LIKE ? ORDER BY dist ASC LIMIT ?`,
		encodeVector(queryVec), prefix+"%", k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]Result, 0, k)
	for rows.Next() {
		var refKey string
		var dist float64
		if err := rows.Scan(&refKey, &dist); err != nil {
			continue
		}
		sim := 1 - dist
		if sim < minSimilarity {
			continue
		}
		id := strings.TrimPrefix(refKey, prefix)
		var text, metaJSON string
		if err := s.db.QueryRow(`SELECT text, metadata FROM records WHERE collection = ? AND id = ?`, collection, id).
			Scan(&text, &metaJSON); err != nil {
			continue
		}
		meta := map[string]interface{}{}
		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &meta)
		}
		results = append(results, Result{ID: id, Collection: collection, Text: text, Metadata: meta, Similarity: sim})
	}
	return results, rows.Err()
}

func (s *Store) searchBruteForce(collection string, queryVec []float32, k int, minSimilarity float64) ([]Result, error) {
	rows, err := s.db.Query(
		`SELECT id, text, embedding, metadata FROM records WHERE collection = ?`, collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]Result, 0, 32)
	for rows.Next() {
		var id, text, metaJSON string
		var embBlob []byte
		if err := rows.Scan(&id, &text, &embBlob, &metaJSON); err != nil {
			continue
		}
		vec := decodeVector(embBlob)
		sim := cosineSimilarity(queryVec, vec)
		if sim < minSimilarity {
			continue
		}
		meta := map[string]interface{}{}
		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &meta)
		}
		candidates = append(candidates, Result{
			ID:         id,
			Collection: collection,
			Text:       text,
			Metadata:   meta,
			Similarity: sim,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Similarity > candidates[j].Similarity })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func encodeVector(vec []float32) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

func decodeVector(b []byte) []float32 {
	n := len(b) / 4
	vec := make([]float32, n)
	r := bytes.NewReader(b)
	binary.Read(r, binary.LittleEndian, &vec)
	return vec
}
