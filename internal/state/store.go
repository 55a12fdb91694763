package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/dbsmedya/goapidiscovery/internal/encquery"
	"github.com/dbsmedya/goapidiscovery/internal/logger"
	"github.com/dbsmedya/goapidiscovery/internal/types"
)

const (
	stateFileName   = "state.json"
	dictionariesDir = "dictionaries"
	catalogFileName = "_catalog.json"
)

// Store reads and writes the files of one scope. It assumes a single writer
// per scope and does no locking.
type Store struct {
	fs     afero.Fs
	root   string
	scope  Scope
	logger *logger.Logger
}

// NewStore creates a Store rooted at root for scope.
func NewStore(fs afero.Fs, root string, scope Scope, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Store{
		fs:     fs,
		root:   root,
		scope:  scope,
		logger: log.WithScope(scope.String()),
	}
}

// Scope returns the scope served by this store.
func (s *Store) Scope() Scope {
	return s.scope
}

// Dir returns the scope directory.
func (s *Store) Dir() string {
	return s.scope.Dir(s.root)
}

// StatePath returns the path of the state file.
func (s *Store) StatePath() string {
	return filepath.Join(s.Dir(), stateFileName)
}

// FieldCachePath returns the path of table's field cache file.
func (s *Store) FieldCachePath(table string) string {
	return filepath.Join(s.Dir(), dictionariesDir, table+".json")
}

// CatalogPath returns the path of the platform-wide catalog index.
func (s *Store) CatalogPath() string {
	return filepath.Join(s.root, s.scope.Platform, catalogFileName)
}

// Load returns the persisted state, or an empty state when none exists.
// A state file that cannot be parsed yields a *CacheCorruptionError.
func (s *Store) Load() (*DiscoveryState, error) {
	path := s.StatePath()
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debugw("No state file, starting empty", "path", path)
			return NewDiscoveryState(s.scope.Platform), nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var st DiscoveryState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, &CacheCorruptionError{Path: path, Err: err}
	}
	st.normalize(s.scope.Platform)

	s.logger.Debugw("Loaded state", "path", path, "known", len(st.Known), "unknown", len(st.Unknown))
	return &st, nil
}

// Save writes st with sorted keys. The file is replaced atomically.
func (s *Store) Save(st *DiscoveryState) error {
	if st == nil {
		return fmt.Errorf("state is nil")
	}
	st.normalize(s.scope.Platform)

	data, err := types.MarshalCanonical(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := WriteFileAtomic(s.fs, s.StatePath(), data); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	s.logger.Debugw("Saved state", "path", s.StatePath(), "known", len(st.Known))
	return nil
}

type fieldCacheFile struct {
	Fields []types.Field `json:"fields"`
}

// ReadFieldCache returns the cached fields of table. hit is false when no
// cache file exists; a cached empty list is a hit.
func (s *Store) ReadFieldCache(table string) (fields []types.Field, hit bool, err error) {
	if err := encquery.ValidateName(table); err != nil {
		return nil, false, err
	}

	path := s.FieldCachePath(table)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read field cache: %w", err)
	}

	var file fieldCacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, false, &CacheCorruptionError{Path: path, Err: err}
	}
	if file.Fields == nil {
		file.Fields = []types.Field{}
	}
	for i := range file.Fields {
		if file.Fields[i].Attributes == nil {
			file.Fields[i].Attributes = map[string]interface{}{}
		}
	}
	return file.Fields, true, nil
}

// WriteFieldCache stores fields for table, replacing any previous entry.
func (s *Store) WriteFieldCache(table string, fields []types.Field) error {
	if err := encquery.ValidateName(table); err != nil {
		return err
	}
	if fields == nil {
		fields = []types.Field{}
	}

	data, err := types.MarshalCanonical(fieldCacheFile{Fields: fields})
	if err != nil {
		return fmt.Errorf("failed to encode field cache: %w", err)
	}
	if err := WriteFileAtomic(s.fs, s.FieldCachePath(table), data); err != nil {
		return fmt.Errorf("failed to write field cache for %s: %w", table, err)
	}
	return nil
}

// ListCachedTables returns the names of tables with a field cache, sorted.
func (s *Store) ListCachedTables() ([]string, error) {
	dir := filepath.Join(s.Dir(), dictionariesDir)
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list field cache: %w", err)
	}

	tables := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		tables = append(tables, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(tables)
	return tables, nil
}

// SaveCatalog writes the catalog index for the platform.
func (s *Store) SaveCatalog(entries []types.CatalogEntry) error {
	if entries == nil {
		entries = []types.CatalogEntry{}
	}
	data, err := types.MarshalCanonical(entries)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := WriteFileAtomic(s.fs, s.CatalogPath(), data); err != nil {
		return fmt.Errorf("failed to save catalog: %w", err)
	}
	return nil
}

// LoadCatalog reads the catalog index. A missing index is an empty list.
func (s *Store) LoadCatalog() ([]types.CatalogEntry, error) {
	path := s.CatalogPath()
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.CatalogEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var entries []types.CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &CacheCorruptionError{Path: path, Err: err}
	}
	if entries == nil {
		entries = []types.CatalogEntry{}
	}
	return entries, nil
}

// WriteFileAtomic writes data to a temporary file in the target directory and
// renames it over path, creating directories as needed.
func WriteFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return err
	}
	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return err
	}
	return nil
}
