package cachestore

import (
	"encoding/json"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"solv/src/internal/cookie"
)

// manifest is a small embedded-KV accelerator in front of the flat
// .solv/.solvx files: alias|ext -> {cookie, extcookie, updated_at}. It
// exists purely so the refresh decision in internal/reposync ("attempt
// C1.read" — spec.md §4.3) can check a repo's last-known cookie without
// opening and seeking into the cache file first. When the entry's cookie
// differs from the one a Read expects, that Read is a miss without the file
// being opened; otherwise the file trailer is still checked. Every
// successful Read or Write overwrites the entry.
type manifest struct {
	db *bbolt.DB
}

var bucketName = []byte("cache_manifest")

type manifestEntry struct {
	Cookie       [cookie.Size]byte `json:"cookie"`
	ExtCookie    [cookie.Size]byte `json:"ext_cookie"`
	HasExtCookie bool              `json:"has_ext_cookie"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func openManifest(root string) (*manifest, error) {
	db, err := bbolt.Open(filepath.Join(root, "manifest.bolt"), 0644, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &manifest{db: db}, nil
}

func (m *manifest) close() error {
	return m.db.Close()
}

func manifestKey(alias, ext string) []byte {
	return []byte(alias + "|" + ext)
}

func (m *manifest) put(alias, ext string, c, ec cookie.Cookie, hasExt bool) error {
	entry := manifestEntry{UpdatedAt: time.Now(), HasExtCookie: hasExt}
	copy(entry.Cookie[:], c[:])
	copy(entry.ExtCookie[:], ec[:])
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(manifestKey(alias, ext), data)
	})
}

func (m *manifest) get(alias, ext string) (manifestEntry, bool) {
	var entry manifestEntry
	var found bool
	_ = m.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get(manifestKey(alias, ext))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &entry); err == nil {
			found = true
		}
		return nil
	})
	return entry, found
}
