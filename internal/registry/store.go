package registry

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// RosterRecord is one enrolled identity as persisted in the roster file,
// one line per identity: NAME,PIN,IMAGE_PATH.
type RosterRecord struct {
	Name      string
	Pin       string
	PhotoPath string
}

// RosterStore appends enrollment records to a flat line-oriented file. The
// line layout is a fixed contract: enrollments from earlier deployments
// must keep loading.
type RosterStore struct {
	mu   sync.Mutex
	path string
}

func NewRosterStore(path string) *RosterStore {
	return &RosterStore{path: path}
}

// Append durably writes one enrollment record. The file is synced before
// returning so a reported success survives process crash.
func (s *RosterStore) Append(rec RosterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return domain.ErrPersistence.WithError(err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s,%s,%s\n", rec.Name, rec.Pin, rec.PhotoPath)
	if _, err := f.WriteString(line); err != nil {
		return domain.ErrPersistence.WithError(err)
	}
	if err := f.Sync(); err != nil {
		return domain.ErrPersistence.WithError(err)
	}

	return nil
}

// Load reads all roster records. Malformed lines are returned alongside the
// good ones so the caller can warn and continue; a missing file is an empty
// roster, not an error.
func (s *RosterStore) Load() ([]RosterRecord, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, domain.ErrPersistence.WithError(err)
	}
	defer f.Close()

	var records []RosterRecord
	var malformed []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			malformed = append(malformed, line)
			continue
		}

		records = append(records, RosterRecord{
			Name:      strings.TrimSpace(parts[0]),
			Pin:       strings.TrimSpace(parts[1]),
			PhotoPath: strings.TrimSpace(parts[2]),
		})
	}
	if err := scanner.Err(); err != nil {
		return records, malformed, domain.ErrPersistence.WithError(err)
	}

	return records, malformed, nil
}

// EmbeddingCache persists embeddings so restarts do not re-encode every
// enrollment photo. One line per identity: NAME,[v1,v2,...] using the
// pgvector text format.
type EmbeddingCache struct {
	mu   sync.Mutex
	path string
}

func NewEmbeddingCache(path string) *EmbeddingCache {
	return &EmbeddingCache{path: path}
}

// Append durably writes one identity's embedding.
func (c *EmbeddingCache) Append(name string, embedding []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return domain.ErrPersistence.WithError(err)
	}
	defer f.Close()

	floats := make([]float32, len(embedding))
	for i, v := range embedding {
		floats[i] = float32(v)
	}
	vec := pgvector.NewVector(floats)

	if _, err := fmt.Fprintf(f, "%s,%s\n", name, vec.String()); err != nil {
		return domain.ErrPersistence.WithError(err)
	}
	if err := f.Sync(); err != nil {
		return domain.ErrPersistence.WithError(err)
	}

	return nil
}

// Load returns the cached embeddings keyed by lowercase name. Unparseable
// lines are skipped; the caller falls back to re-encoding the photo.
func (c *EmbeddingCache) Load() (map[string][]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]float64{}, nil
		}
		return nil, domain.ErrPersistence.WithError(err)
	}
	defer f.Close()

	cached := make(map[string][]float64)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}

		var vec pgvector.Vector
		if err := vec.Parse(parts[1]); err != nil {
			continue
		}

		floats := vec.Slice()
		embedding := make([]float64, len(floats))
		for i, v := range floats {
			embedding[i] = float64(v)
		}

		cached[strings.ToLower(parts[0])] = embedding
	}
	if err := scanner.Err(); err != nil {
		return cached, domain.ErrPersistence.WithError(err)
	}

	return cached, nil
}
