// Package storage persists question corpora as snapshot files so an index
// can be rebuilt after a restart without asking the grading pipeline again.
package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/knowledge-engine/questionbank/internal/search"
)

// snapshotVersion is written into msgpack snapshots.
const snapshotVersion = "1"

// ErrLocked is returned when another writer holds the corpus lock.
var ErrLocked = errors.New("corpus file is locked by another writer")

// Format is the on-disk encoding of a corpus file.
type Format string

const (
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatMsgpack Format = "msgpack"
)

// FormatFromPath picks the encoding from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".msgpack", ".mpk":
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unsupported corpus format %q", filepath.Ext(path))
	}
}

// QuestionStorage defines the interface for persisting a question corpus
type QuestionStorage interface {
	Load() ([]search.Question, error)
	Save(questions []search.Question) error
	Close() error
}

// corpusSnapshot is the msgpack file layout.
type corpusSnapshot struct {
	Version   string            `msgpack:"version"`
	SavedAt   time.Time         `msgpack:"saved_at"`
	Questions []search.Question `msgpack:"questions"`
}

// FileStorage implements QuestionStorage on a single local file. Writers
// across processes are serialized through an advisory lock on <path>.lock.
type FileStorage struct {
	path   string
	format Format
	lock   *flock.Flock
	mu     sync.RWMutex
}

// NewFileStorage creates a file-based storage for path
func NewFileStorage(path string) (*FileStorage, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStorage{
		path:   path,
		format: format,
		lock:   flock.New(path + ".lock"),
	}, nil
}

// Path returns the corpus file location.
func (fs *FileStorage) Path() string {
	return fs.path
}

// Format returns the encoding used by this storage.
func (fs *FileStorage) Format() Format {
	return fs.format
}

// Load reads every question from disk. A missing file wraps os.ErrNotExist.
func (fs *FileStorage) Load() ([]search.Question, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	file, err := os.Open(fs.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer file.Close()

	questions, err := Decode(file, fs.format)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", fs.path, err)
	}
	return questions, nil
}

// Save replaces the file contents. The data is written to a temporary file
// and renamed into place, so readers never observe a partial corpus.
func (fs *FileStorage) Save(questions []search.Question) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	locked, err := fs.lock.TryLock()
	if err != nil {
		return fmt.Errorf("cannot acquire corpus lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w (lock: %s)", ErrLocked, fs.lock.Path())
	}
	defer func() { _ = fs.lock.Unlock() }()

	var buf bytes.Buffer
	if err := Encode(&buf, fs.format, questions); err != nil {
		return fmt.Errorf("failed to encode corpus: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), filepath.Base(fs.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("failed to replace corpus: %w", err)
	}
	return nil
}

// Close releases the lock file handle
func (fs *FileStorage) Close() error {
	return fs.lock.Close()
}

// Decode reads a corpus in the given format.
func Decode(r io.Reader, format Format) ([]search.Question, error) {
	switch format {
	case FormatJSON:
		var questions []search.Question
		if err := json.NewDecoder(r).Decode(&questions); err != nil {
			return nil, err
		}
		return questions, nil

	case FormatJSONL:
		var questions []search.Question
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			var q search.Question
			if err := json.Unmarshal(raw, &q); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			questions = append(questions, q)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return questions, nil

	case FormatMsgpack:
		var snap corpusSnapshot
		if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
			return nil, err
		}
		if snap.Version != snapshotVersion {
			return nil, fmt.Errorf("unsupported snapshot version %q", snap.Version)
		}
		return snap.Questions, nil

	default:
		return nil, fmt.Errorf("unsupported corpus format %q", format)
	}
}

// Encode writes a corpus in the given format.
func Encode(w io.Writer, format Format, questions []search.Question) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if questions == nil {
			questions = []search.Question{}
		}
		return enc.Encode(questions)

	case FormatJSONL:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, q := range questions {
			if err := enc.Encode(q); err != nil {
				return err
			}
		}
		return nil

	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(&corpusSnapshot{
			Version:   snapshotVersion,
			SavedAt:   time.Now().UTC(),
			Questions: questions,
		})

	default:
		return fmt.Errorf("unsupported corpus format %q", format)
	}
}

// Convert copies a corpus between files, choosing formats by extension.
func Convert(src, dst string) (int, error) {
	in, err := NewFileStorage(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	questions, err := in.Load()
	if err != nil {
		return 0, err
	}

	out, err := NewFileStorage(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	if err := out.Save(questions); err != nil {
		return 0, err
	}
	return len(questions), nil
}
