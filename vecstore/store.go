package vecstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/b17z/sage/fsutil"
)

// File names inside a store directory. Embeddings persist as a plain numeric
// matrix plus a parallel identifier list, never a serialized object, so
// loading a store can never execute anything.
const (
	idsFile     = "embeddings.ids"
	vectorsFile = "embeddings.txt"
)

// Store wraps the current Snapshot behind one mutex and persists it to a
// directory. The lock is held only for the read-or-swap, never across I/O.
type Store struct {
	dir string

	mu  sync.Mutex
	cur *Snapshot
}

// Open loads the store persisted in dir, or an empty store if none exists.
func Open(dir string) (*Store, error) {
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	snap, err := load(dir)
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, cur: snap}, nil
}

// Current returns the live snapshot. Safe to read concurrently with writes;
// writers swap in a fresh snapshot and never touch published ones.
func (s *Store) Current() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Add stores (or replaces) the vector for id and persists.
func (s *Store) Add(id string, vec []float32) error {
	s.mu.Lock()
	next := s.cur.Add(id, vec)
	s.cur = next
	s.mu.Unlock()
	return persist(s.dir, next)
}

// Remove deletes the vector for id, if present, and persists.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	next := s.cur.Remove(id)
	s.cur = next
	s.mu.Unlock()
	return persist(s.dir, next)
}

// RemoveAll deletes every given id in one swap and one persist, so paired
// deletions (checkpoint file + embedding row) cannot be torn apart by an
// interleaved reader seeing half the batch.
func (s *Store) RemoveAll(ids []string) error {
	s.mu.Lock()
	next := s.cur
	for _, id := range ids {
		next = next.Remove(id)
	}
	s.cur = next
	s.mu.Unlock()
	return persist(s.dir, next)
}

func load(dir string) (*Snapshot, error) {
	idsPath := filepath.Join(dir, idsFile)
	vecsPath := filepath.Join(dir, vectorsFile)

	idsData, err := os.ReadFile(idsPath)
	if os.IsNotExist(err) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", idsPath, err)
	}

	var ids []string
	for _, line := range strings.Split(string(idsData), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, line)
		}
	}

	f, err := os.Open(vecsPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", vecsPath, err)
	}
	defer f.Close()

	var vectors [][]float32
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		row := make([]float32, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, fmt.Errorf("parse %s row %d: %w", vecsPath, len(vectors), err)
			}
			row[i] = float32(v)
		}
		vectors = append(vectors, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", vecsPath, err)
	}

	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("embedding store corrupt: %d ids vs %d vectors", len(ids), len(vectors))
	}
	return build(ids, vectors), nil
}

func persist(dir string, snap *Snapshot) error {
	var idsBuf, vecsBuf strings.Builder
	for i, id := range snap.ids {
		idsBuf.WriteString(id)
		idsBuf.WriteByte('\n')
		for j, v := range snap.vectors[i] {
			if j > 0 {
				vecsBuf.WriteByte(' ')
			}
			vecsBuf.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
		vecsBuf.WriteByte('\n')
	}

	if err := fsutil.WriteFileAtomic(filepath.Join(dir, idsFile), []byte(idsBuf.String()), 0o600); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(dir, vectorsFile), []byte(vecsBuf.String()), 0o600)
}
