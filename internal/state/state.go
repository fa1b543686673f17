package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.papersync/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)
)

var (
	appBucket    = []byte("app")
	tokenKey     = []byte("token")
	remoteBucket = []byte("remote")
)

// RemoteFile tracks the last known state of a document on the remote
// store. Populated from upload successes and channel notifications; read
// by the move-detection correlator (last known fingerprint of a deleted
// path) and by the duplicate-upload check.
type RemoteFile struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	Size        int64  `json:"size"`
	MTime       int64  `json:"mtime"`
	Folder      bool   `json:"folder"`
}

// State wraps a bbolt database for all persistent agent state.
type State struct {
	db *bolt.DB
}

// Load opens the state database at ~/.papersync/state.db, creating it if
// it does not exist. openTimeout bounds the wait for the bolt file lock.
func Load(openTimeout time.Duration) (*State, error) {
	return LoadAt(dbPath(), openTimeout)
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string, openTimeout time.Duration) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(appBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(remoteBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Token returns the cached session token, or empty string.
func (s *State) Token() string {
	var token string

	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(tokenKey)
		if v != nil {
			token = string(v)
		}

		return nil
	})

	return token
}

// SetToken persists the session token.
func (s *State) SetToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(tokenKey, []byte(token))
	})
}

// ClearToken removes the cached session token.
func (s *State) ClearToken() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Delete(tokenKey)
	})
}

// RemoteFile returns the remote index entry for a path, or nil if the
// remote store is not known to hold it.
func (s *State) RemoteFile(path string) (*RemoteFile, error) {
	var rf *RemoteFile

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(remoteBucket).Get([]byte(path))
		if v == nil {
			return nil
		}

		rf = &RemoteFile{}

		return json.Unmarshal(v, rf)
	})

	return rf, err
}

// SetRemoteFile persists the remote index entry for a path.
func (s *State) SetRemoteFile(rf RemoteFile) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rf)
		if err != nil {
			return err
		}

		return tx.Bucket(remoteBucket).Put([]byte(rf.Path), data)
	})
}

// DeleteRemoteFile removes the remote index entry for a path.
func (s *State) DeleteRemoteFile(path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(remoteBucket).Delete([]byte(path))
	})
}

// RenameRemoteFile moves an index entry from one path to another,
// keeping fingerprint and size. Used when a move or rename succeeds.
func (s *State) RenameRemoteFile(from, to string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(remoteBucket)

		v := b.Get([]byte(from))
		if v == nil {
			return nil
		}

		var rf RemoteFile
		if err := json.Unmarshal(v, &rf); err != nil {
			return err
		}

		rf.Path = to

		data, err := json.Marshal(rf)
		if err != nil {
			return err
		}

		if err := b.Delete([]byte(from)); err != nil {
			return err
		}

		return b.Put([]byte(to), data)
	})
}

// AllRemoteFiles returns the full remote index keyed by path.
func (s *State) AllRemoteFiles() (map[string]RemoteFile, error) {
	result := make(map[string]RemoteFile)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(remoteBucket).ForEach(func(k, v []byte) error {
			var rf RemoteFile
			if err := json.Unmarshal(v, &rf); err != nil {
				return err
			}

			result[string(k)] = rf

			return nil
		})
	})

	return result, err
}

func dbPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		// Fail loudly rather than silently writing to the current directory
		// where the database (containing the session token) might end up
		// with wrong permissions or inside a source-controlled tree.
		fmt.Fprintf(os.Stderr, "fatal: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}

	return filepath.Join(dir, ".papersync", "state.db")
}
