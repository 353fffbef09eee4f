/*
Package store implements a persistent cache of quantization results backed
by SQLite.

Results are keyed by the SHA-1 of the encoded request so identical settings
and pixels are only ever quantized once.
*/
package store

import (
	"crypto/sha1"
	"database/sql"
	"fmt"
	"time"

	"github.com/bodgit/tpq/quantize"
	"github.com/bodgit/tpq/wire"
	_ "github.com/mattn/go-sqlite3"
)

// Cache is a result cache. It is safe for concurrent use.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database in file.
func Open(file string) (*Cache, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS image (id INTEGER PRIMARY KEY NOT NULL, sha1 TEXT NOT NULL UNIQUE, width INTEGER NOT NULL, height INTEGER NOT NULL)"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS result (id INTEGER PRIMARY KEY NOT NULL, key TEXT NOT NULL UNIQUE, image_id INTEGER NOT NULL, name TEXT NOT NULL, created INTEGER NOT NULL, result BLOB NOT NULL, FOREIGN KEY(image_id) REFERENCES image(id))"); err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{
		db: db,
	}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key returns the cache key for running s over m.
func Key(s quantize.Settings, m quantize.SourceImage) (string, error) {
	req := wire.Request{Settings: s, Image: m}
	b, err := req.MarshalBinary()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%X", sha1.Sum(b)), nil
}

func imageSHA(m quantize.SourceImage) string {
	h := sha1.New()
	fmt.Fprintf(h, "%dx%d:", m.Width, m.Height)
	h.Write(m.Pix)
	return fmt.Sprintf("%X", h.Sum(nil))
}

func (c *Cache) addImage(m quantize.SourceImage) (int64, error) {
	sha := imageSHA(m)

	var id int64
	switch err := c.db.QueryRow("SELECT id FROM image WHERE sha1 = ?", sha).Scan(&id); err {
	case sql.ErrNoRows:
		result, err := c.db.Exec("INSERT OR IGNORE INTO image (sha1, width, height) VALUES (?, ?, ?)", sha, m.Width, m.Height)
		if err != nil {
			return 0, err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			// Lost a race with another writer
			if err := c.db.QueryRow("SELECT id FROM image WHERE sha1 = ?", sha).Scan(&id); err != nil {
				return 0, err
			}
			return id, nil
		}
		return result.LastInsertId()
	case nil:
		return id, nil
	default:
		return 0, err
	}
}

// Put stores r under key. name records where the image came from.
func (c *Cache) Put(key, name string, m quantize.SourceImage, r *quantize.Result) error {
	b, err := wire.Result{Result: r}.MarshalBinary()
	if err != nil {
		return err
	}

	image, err := c.addImage(m)
	if err != nil {
		return err
	}

	if _, err := c.db.Exec("INSERT OR REPLACE INTO result (key, image_id, name, created, result) VALUES (?, ?, ?, ?, ?)", key, image, name, time.Now().Unix(), b); err != nil {
		return err
	}
	return nil
}

// Find returns the result stored under key, or nil if there isn't one.
func (c *Cache) Find(key string) (*quantize.Result, error) {
	var b []byte
	switch err := c.db.QueryRow("SELECT result FROM result WHERE key = ?", key).Scan(&b); err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
		var res wire.Result
		if err := res.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		return res.Result, nil
	default:
		return nil, err
	}
}

// Entry describes a cached result.
type Entry struct {
	Key     string
	Name    string
	Width   int
	Height  int
	Created time.Time
}

// Entries lists cached results, newest first.
func (c *Cache) Entries() ([]Entry, error) {
	rows, err := c.db.Query("SELECT r.key, r.name, i.width, i.height, r.created FROM result AS r JOIN image AS i ON r.image_id = i.id ORDER BY r.created DESC, r.id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Key, &e.Name, &e.Width, &e.Height, &created); err != nil {
			return nil, err
		}
		e.Created = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune removes results created before t and any images left without
// results, returning how many results were removed.
func (c *Cache) Prune(t time.Time) (int64, error) {
	result, err := c.db.Exec("DELETE FROM result WHERE created < ?", t.Unix())
	if err != nil {
		return 0, err
	}
	if _, err := c.db.Exec("DELETE FROM image WHERE id NOT IN (SELECT image_id FROM result)"); err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
