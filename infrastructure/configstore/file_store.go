package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/agilira/argus"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const DefaultReadCacheTTL = 30 * time.Second

// FileStoreOptions tune a FileStore. Zero values pick the defaults.
type FileStoreOptions struct {
	// BackupDir receives timestamped copies. Empty means "<dir of path>/backups".
	BackupDir    string
	ReadCacheTTL time.Duration
}

// FileStore keeps the configuration snapshot in a single JSON or YAML file,
// picked by extension.
type FileStore struct {
	path      string
	backupDir string
	format    argus.ConfigFormat
	cacheTTL  time.Duration

	mu       sync.Mutex
	cached   domainCache.ConfigSet
	cachedAt time.Time
	now      func() time.Time
}

func NewFileStore(path string, opts FileStoreOptions) *FileStore {
	if opts.BackupDir == "" {
		opts.BackupDir = filepath.Join(filepath.Dir(path), "backups")
	}
	if opts.ReadCacheTTL <= 0 {
		opts.ReadCacheTTL = DefaultReadCacheTTL
	}
	format := argus.DetectFormat(path)
	if format != argus.FormatYAML {
		format = argus.FormatJSON
	}
	return &FileStore{
		path:      path,
		backupDir: opts.BackupDir,
		format:    format,
		cacheTTL:  opts.ReadCacheTTL,
		now:       time.Now,
	}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load returns the snapshot, served from the read cache while it is fresh.
// Pools missing from the file are left missing.
func (s *FileStore) Load(_ context.Context) (domainCache.ConfigSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Sub(s.cachedAt) < s.cacheTTL {
		return s.cached.Clone(), nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	set, err := s.decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}

	s.cached = set
	s.cachedAt = s.now()
	return set.Clone(), nil
}

// Save writes the snapshot atomically and refreshes the read cache.
func (s *FileStore) Save(_ context.Context, set domainCache.ConfigSet) error {
	data, err := s.encode(set)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	s.cached = set.Clone()
	s.cachedAt = s.now()
	logrus.Debugf("[CONFIG_STORE] saved %d pools to %s", len(set), s.path)
	return nil
}

// Backup writes set next to the other backups as
// "<name>.<timestamp>.backup.<ext>" and returns the path.
func (s *FileStore) Backup(_ context.Context, set domainCache.ConfigSet) (string, error) {
	data, err := s.encode(set)
	if err != nil {
		return "", err
	}

	base := filepath.Base(s.path)
	ext := filepath.Ext(base)
	stamp := s.now().UTC().Format("20060102T150405.000000000")
	name := fmt.Sprintf("%s.%s.backup%s", strings.TrimSuffix(base, ext), stamp, ext)
	target := filepath.Join(s.backupDir, name)

	if err := writeAtomic(target, data); err != nil {
		return "", err
	}
	logrus.Infof("[CONFIG_STORE] backup written to %s", target)
	return target, nil
}

func (s *FileStore) ClearCache() {
	s.mu.Lock()
	s.cached = nil
	s.cachedAt = time.Time{}
	s.mu.Unlock()
}

func (s *FileStore) decode(data []byte) (domainCache.ConfigSet, error) {
	set := domainCache.ConfigSet{}
	var err error
	switch s.format {
	case argus.FormatYAML:
		err = yaml.Unmarshal(data, &set)
	default:
		err = json.Unmarshal(data, &set)
	}
	if err != nil {
		return nil, err
	}
	return set, nil
}

func (s *FileStore) encode(set domainCache.ConfigSet) ([]byte, error) {
	switch s.format {
	case argus.FormatYAML:
		data, err := yaml.Marshal(set)
		if err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		return data, nil
	default:
		data, err := json.MarshalIndent(set, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode json: %w", err)
		}
		return append(data, '\n'), nil
	}
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
