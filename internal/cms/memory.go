package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// MemoryStore serves objects held in process. It backs development mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects []Object
	dir     string
	logger  *zap.Logger
}

// NewMemoryStore returns a store holding objects.
func NewMemoryStore(objects ...Object) *MemoryStore {
	s := &MemoryStore{logger: zap.NewNop()}
	s.Replace(objects)
	return s
}

// Replace swaps the full object set.
func (s *MemoryStore) Replace(objects []Object) {
	cloned := make([]Object, len(objects))
	for i, obj := range objects {
		cloned[i] = obj.Clone()
	}
	s.mu.Lock()
	s.objects = cloned
	s.mu.Unlock()
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Find implements Store.
func (s *MemoryStore) Find(ctx context.Context, q Query) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "find " + q.Type.String(), Err: err}
	}
	doc := q.Document()

	s.mu.RLock()
	matched := make([]Object, 0)
	for _, obj := range s.objects {
		if doc.Match(obj) {
			matched = append(matched, obj.Clone())
		}
	}
	s.mu.RUnlock()

	if q.Sort != "" {
		field, desc := strings.TrimPrefix(q.Sort, "-"), strings.HasPrefix(q.Sort, "-")
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := matched[i].Field(field)
			b, _ := matched[j].Field(field)
			if desc {
				return compareValues(b, a) < 0
			}
			return compareValues(a, b) < 0
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	if len(matched) == 0 {
		return nil, ErrNotFound
	}
	return matched, nil
}

// FindOne implements Store.
func (s *MemoryStore) FindOne(ctx context.Context, q Query) (Object, error) {
	q.Limit = 1
	objects, err := s.Find(ctx, q)
	if err != nil {
		return Object{}, err
	}
	return objects[0], nil
}

func compareValues(a, b any) int {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

type fixtureFile struct {
	Objects []map[string]any `yaml:"objects"`
}

// LoadDir reads every *.yaml and *.yml file under dir into a new store.
func LoadDir(dir string, logger *zap.Logger) (*MemoryStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStore{dir: dir, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the fixture directory. The current objects stay in place when reading fails.
func (s *MemoryStore) Reload() error {
	if s.dir == "" {
		return errors.New("cms: memory store has no fixture directory")
	}
	objects, err := readFixtures(s.dir)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects = objects
	s.mu.Unlock()
	s.logger.Info("cms: fixtures loaded", zap.String("dir", s.dir), zap.Int("objects", len(objects)))
	return nil
}

func readFixtures(dir string) ([]Object, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cms: read fixtures %s: %w", dir, err)
	}
	var objects []Object
	for _, entry := range entries {
		if entry.IsDir() || !isFixture(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cms: read %s: %w", path, err)
		}
		var file fixtureFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("cms: parse %s: %w", path, err)
		}
		for i, doc := range file.Objects {
			obj, err := objectFromFixture(doc)
			if err != nil {
				return nil, fmt.Errorf("cms: %s object %d: %w", path, i, err)
			}
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

// objectFromFixture normalises YAML scalars (timestamps, ints) to the JSON shapes the API returns.
func objectFromFixture(doc map[string]any) (Object, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Object{}, err
	}
	var obj Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Object{}, err
	}
	if obj.ID == "" || obj.Slug == "" || obj.Type == "" {
		return Object{}, errors.New("id, slug and type are required")
	}
	return obj, nil
}

func isFixture(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Watch reloads fixtures whenever a file in the directory changes, until ctx is done.
// Bursts of events are coalesced over debounce.
func (s *MemoryStore) Watch(ctx context.Context, debounce time.Duration) error {
	if s.dir == "" {
		return errors.New("cms: memory store has no fixture directory")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cms: create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("cms: watch %s: %w", s.dir, err)
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isFixture(event.Name) || event.Op == fsnotify.Chmod {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if err := s.Reload(); err != nil {
					s.logger.Warn("cms: fixture reload failed", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("cms: fixture watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
