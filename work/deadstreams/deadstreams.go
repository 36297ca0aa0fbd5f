package deadstreams

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"golang.org/x/crypto/blake2b"

	"iptv-organizer/work/logger"
	"iptv-organizer/work/types"
)

// Store is the acquisition-side registry of repeatedly-unreachable URLs.
// It lets later runs skip candidates that have failed in several previous
// runs, which is where most of a run's probe time would otherwise go.
// It is strictly a candidate pre-filter: nothing in the resolution core
// reads it, and the run's output contract does not depend on it.
type Store struct {
	db        *sql.DB
	threshold int // failure count at which a URL is considered dead
}

const schema = `
CREATE TABLE IF NOT EXISTS dead_urls (
	key        TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	failures   INTEGER NOT NULL DEFAULT 0,
	first_seen TEXT NOT NULL,
	last_seen  TEXT NOT NULL
);`

// Open opens (creating if needed) the registry database at path.
func Open(path string, threshold int) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open dead-url db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init dead-url db %s: %w", path, err)
	}
	if threshold < 1 {
		threshold = 3
	}
	return &Store{db: db, threshold: threshold}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// urlKey digests the URL for the primary key. Stream URLs routinely run to
// hundreds of bytes of tokens; a fixed 16-byte digest keeps the index
// compact.
func urlKey(url string) string {
	sum := blake2b.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16])
}

// FilterKnownDead removes candidate URLs whose failure count has reached
// the threshold from every channel, returning how many were skipped.
// Registry errors are logged and treated as "not dead": a broken cache
// must never shrink the candidate set.
func (s *Store) FilterKnownDead(channels map[string]*types.Channel) int {
	skipped := 0
	for id, channel := range channels {
		kept := channel.URLs[:0]
		for _, url := range channel.URLs {
			if s.isDead(url) {
				logger.Debug("[DEADURLS] Skipping known-dead URL of channel %s", id)
				skipped++
				continue
			}
			kept = append(kept, url)
		}
		channel.URLs = kept
	}
	if skipped > 0 {
		logger.Info("[DEADURLS] Skipped %d known-dead candidate URLs", skipped)
	}
	return skipped
}

func (s *Store) isDead(url string) bool {
	var failures int
	err := s.db.QueryRow(`SELECT failures FROM dead_urls WHERE key = ?`, urlKey(url)).Scan(&failures)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		logger.Error("[DEADURLS] Lookup failed: %v", err)
		return false
	}
	return failures >= s.threshold
}

// Record updates the registry from a completed run's reports: unreachable
// URLs get their failure count bumped, URLs that probed valid are revived
// (removed).
func (s *Store) Record(reports map[string]*types.Report) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record dead urls: %w", err)
	}
	defer tx.Rollback()

	bump, err := tx.Prepare(`
		INSERT INTO dead_urls (key, url, failures, first_seen, last_seen)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET failures = failures + 1, last_seen = excluded.last_seen`)
	if err != nil {
		return fmt.Errorf("record dead urls: %w", err)
	}
	defer bump.Close()

	revive, err := tx.Prepare(`DELETE FROM dead_urls WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("record dead urls: %w", err)
	}
	defer revive.Close()

	for _, report := range reports {
		for _, source := range report.Sources {
			if source.Valid {
				if _, err := revive.Exec(urlKey(source.URL)); err != nil {
					return fmt.Errorf("record dead urls: %w", err)
				}
				continue
			}
			if _, err := bump.Exec(urlKey(source.URL), source.URL, now, now); err != nil {
				return fmt.Errorf("record dead urls: %w", err)
			}
		}
	}

	return tx.Commit()
}
