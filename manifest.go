package imgclass

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Manifest is a SQLite record of downloaded thumbnails.
type Manifest struct {
	db *sql.DB
}

// ManifestEntry describes one saved thumbnail.
type ManifestEntry struct {
	URL          string
	WNID         string
	SynsetID     int
	Path         string
	Size         int64
	Hash         string // dHash, "" if the image could not be hashed
	Artist       string
	Copyright    string
	DownloadedAt time.Time
}

// ManifestStats summarises the entries of one WNID.
type ManifestStats struct {
	Total        int
	UniqueHashes int
	Bytes        int64
}

const manifestSchema = `
CREATE TABLE IF NOT EXISTS downloads (
	url TEXT PRIMARY KEY,
	wnid TEXT NOT NULL,
	synset_id INTEGER,
	path TEXT NOT NULL,
	size INTEGER,
	dhash TEXT,
	artist TEXT,
	copyright TEXT,
	downloaded_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_downloads_wnid ON downloads(wnid);
CREATE INDEX IF NOT EXISTS idx_downloads_dhash ON downloads(dhash);`

// OpenManifest opens (creating if needed) the manifest database at path.
func OpenManifest(path string) (*Manifest, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	// Concurrent downloads record through one connection; SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(manifestSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create manifest schema: %w", err)
	}
	return &Manifest{db: db}, nil
}

// Close closes the database.
func (m *Manifest) Close() error {
	return m.db.Close()
}

// Record inserts or replaces the entry for e.URL.
func (m *Manifest) Record(ctx context.Context, e ManifestEntry) error {
	if e.DownloadedAt.IsZero() {
		e.DownloadedAt = time.Now()
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO downloads (
			url, wnid, synset_id, path, size, dhash, artist, copyright, downloaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.URL, e.WNID, e.SynsetID, e.Path, e.Size, e.Hash, e.Artist, e.Copyright,
		e.DownloadedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", e.URL, err)
	}
	return nil
}

const manifestColumns = `url, wnid, synset_id, path, size, dhash, artist, copyright, downloaded_at`

func scanEntry(row interface{ Scan(...any) error }) (ManifestEntry, error) {
	var e ManifestEntry
	var ts string
	err := row.Scan(&e.URL, &e.WNID, &e.SynsetID, &e.Path, &e.Size, &e.Hash, &e.Artist, &e.Copyright, &ts)
	if err != nil {
		return e, err
	}
	e.DownloadedAt, _ = time.Parse(time.RFC3339, ts)
	return e, nil
}

// Lookup returns the entry recorded for url.
func (m *Manifest) Lookup(ctx context.Context, url string) (ManifestEntry, bool, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+manifestColumns+` FROM downloads WHERE url = ?`, url)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ManifestEntry{}, false, nil
	}
	if err != nil {
		return ManifestEntry{}, false, fmt.Errorf("lookup %s: %w", url, err)
	}
	return e, true, nil
}

// Entries lists the entries of wnid ordered by path. An empty wnid lists all.
func (m *Manifest) Entries(ctx context.Context, wnid string) ([]ManifestEntry, error) {
	query := `SELECT ` + manifestColumns + ` FROM downloads`
	var args []any
	if wnid != "" {
		query += ` WHERE wnid = ?`
		args = append(args, wnid)
	}
	query += ` ORDER BY path`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []ManifestEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats counts the entries and distinct non-empty hashes of wnid.
// An empty wnid covers the whole manifest.
func (m *Manifest) Stats(ctx context.Context, wnid string) (ManifestStats, error) {
	query := `SELECT COUNT(*), COUNT(DISTINCT NULLIF(dhash, '')), COALESCE(SUM(size), 0) FROM downloads`
	var args []any
	if wnid != "" {
		query += ` WHERE wnid = ?`
		args = append(args, wnid)
	}
	var st ManifestStats
	if err := m.db.QueryRowContext(ctx, query, args...).Scan(&st.Total, &st.UniqueHashes, &st.Bytes); err != nil {
		return st, fmt.Errorf("manifest stats: %w", err)
	}
	return st, nil
}
