// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Package store implements the content-addressed blob store: a directory
// where every file is named by its CID's canonical text and holds exactly
// the bytes that digest to that CID.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/blobfed/fednode/cid"
)

// ErrNotFound is returned by Read when no blob exists for the given CID.
var ErrNotFound = errors.New("store: blob not found")

// Store is the content-addressed blob store contract. Implementations must
// allow concurrent reads; writes must be atomic at the filesystem level.
type Store interface {
	Has(c cid.CID) (bool, error)
	Read(c cid.CID) ([]byte, error)
	Write(c cid.CID, data []byte) error
}

// LocalFS is a directory-backed Store: each blob lives at dir/{cid_text}.
// Writes land in a temp file in the same directory and are renamed into
// place atomically, so a write that's interrupted mid-transfer never leaves
// a partial file at the final path.
type LocalFS struct {
	dir string
}

// NewLocalFS creates dir if missing and returns a Store rooted there.
func NewLocalFS(dir string) (*LocalFS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
	}

	return &LocalFS{dir: dir}, nil
}

func (s *LocalFS) path(c cid.CID) string {
	return filepath.Join(s.dir, c.ToText())
}

// Has reports whether a blob exists for c.
func (s *LocalFS) Has(c cid.CID) (bool, error) {
	_, err := os.Stat(s.path(c))
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, fmt.Errorf("store: stat %s: %w", c.ToText(), err)
}

// Read returns the blob's bytes, or ErrNotFound if none exists.
func (s *LocalFS) Read(c cid.CID) ([]byte, error) {
	data, err := os.ReadFile(s.path(c))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("store: read %s: %w", c.ToText(), err)
	}

	return data, nil
}

// Write creates or replaces the blob for c. Callers must have already
// verified data's integrity against c; Write performs no check of its own.
// The write lands in a temp file and is renamed into place, so a concurrent
// reader never observes a partially written blob.
func (s *LocalFS) Write(c cid.CID, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, c.ToText()+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file for %s: %w", c.ToText(), err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: write temp file for %s: %w", c.ToText(), err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("store: sync temp file for %s: %w", c.ToText(), err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp file for %s: %w", c.ToText(), err)
	}

	if err := os.Rename(tmpName, s.path(c)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename into place for %s: %w", c.ToText(), err)
	}

	return nil
}

// WriteStream writes r to the blob for c incrementally, verifying the
// running SHA-256 digest matches c before the temp file is renamed into
// place. It never buffers the whole body in memory.
func WriteStream(s *LocalFS, c cid.CID, r io.Reader) error {
	tmp, err := os.CreateTemp(s.dir, c.ToText()+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp file for %s: %w", c.ToText(), err)
	}
	tmpName := tmp.Name()

	teed := io.TeeReader(r, tmp)

	got, err := cid.Read(teed)

	closeErr := tmp.Close()

	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: stream to temp file for %s: %w", c.ToText(), err)
	}

	if closeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: close temp file for %s: %w", c.ToText(), closeErr)
	}

	if !got.Equal(c) {
		os.Remove(tmpName)
		return fmt.Errorf("store: streamed body digest %s does not match expected %s", got.ToText(), c.ToText())
	}

	if err := os.Rename(tmpName, s.path(c)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("store: rename into place for %s: %w", c.ToText(), err)
	}

	return nil
}
