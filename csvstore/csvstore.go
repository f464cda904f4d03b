// Package csvstore provides a flat-file backend storing one key,value record
// per line. Saves append to the file; deletes rewrite it entirely.
//
// The rewrite makes Delete a read-modify-write over the whole medium: the
// read and the rewrite are not one atomic transaction, so a Delete racing
// another Delete, or racing a Save to a different key, can lose an update.
// Do not use a Store under concurrent multi-key mutation without external
// serialization — one writer at a time per file.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tailored-agentic-units/persistmap"
)

// Store is a full-rewrite flat-file backend bound to one CSV file.
type Store[K comparable, V any] struct {
	path  string
	codec persistmap.Codec[K, V]
}

// New creates a Store for the file at path. The file and its parent
// directories are created on first use if absent.
func New[K comparable, V any](path string, codec persistmap.Codec[K, V]) *Store[K, V] {
	return &Store[K, V]{path: path, codec: codec}
}

// Path returns the file path the store writes to.
func (s *Store[K, V]) Path() string {
	return s.path
}

// LoadAll parses the entire file. An absent file is created empty and an
// empty map is returned. Records are applied in file order, so for a key
// appended more than once the last record wins. A record whose key or value
// cannot be decoded fails the whole load with ErrBadRecord.
func (s *Store[K, V]) LoadAll(_ context.Context) (map[K]V, error) {
	if err := s.ensureFile(); err != nil {
		return nil, fmt.Errorf("%w: %v", persistmap.ErrLoadFailed, err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", persistmap.ErrLoadFailed, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2

	all := make(map[K]V)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", persistmap.ErrBadRecord, err)
		}

		key, err := s.codec.DecodeKey(record[0])
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", persistmap.ErrBadRecord, record[0], err)
		}
		value, err := s.codec.DecodeValue([]byte(record[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", persistmap.ErrBadRecord, record[0], err)
		}
		all[key] = value
	}

	return all, nil
}

// Save appends one record and flushes it to the file.
func (s *Store[K, V]) Save(_ context.Context, key K, value V) error {
	if err := s.ensureFile(); err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrSaveFailed, err)
	}

	record, err := s.encode(key, value)
	if err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrSaveFailed, err)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrSaveFailed, err)
	}

	w := csv.NewWriter(f)
	w.Write(record)
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", persistmap.ErrSaveFailed, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrSaveFailed, err)
	}
	return nil
}

// Delete reads the entire file, drops the key from the parsed state, then
// truncates the file and writes the survivors back. Deleting an absent key
// rewrites the file unchanged and succeeds. See the package comment for the
// concurrency constraint this rewrite imposes.
func (s *Store[K, V]) Delete(ctx context.Context, key K) error {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrDeleteFailed, err)
	}
	delete(all, key)

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrDeleteFailed, err)
	}

	w := csv.NewWriter(f)
	for k, v := range all {
		record, err := s.encode(k, v)
		if err != nil {
			f.Close()
			return fmt.Errorf("%w: %v", persistmap.ErrDeleteFailed, err)
		}
		w.Write(record)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", persistmap.ErrDeleteFailed, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrDeleteFailed, err)
	}
	return nil
}

// Flush is a no-op; Save and Delete leave nothing buffered behind.
func (s *Store[K, V]) Flush(_ context.Context) error {
	return nil
}

func (s *Store[K, V]) encode(key K, value V) ([]string, error) {
	ks, err := s.codec.EncodeKey(key)
	if err != nil {
		return nil, err
	}
	vs, err := s.codec.EncodeValue(value)
	if err != nil {
		return nil, err
	}
	return []string{ks, string(vs)}, nil
}

func (s *Store[K, V]) ensureFile() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	return f.Close()
}
