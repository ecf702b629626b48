// Package store implements the filesystem-backed package store.
//
// Archives live under the storage root in an id/version layout with the
// extracted manifest persisted alongside:
//
//	{root}/{id}/{version}/{id}.{version}.nupkg
//	{root}/{id}/{version}/manifest.json
//
// All path segments are lowercased. The filesystem is the source of truth;
// the in-memory catalog is rebuilt from it at startup and mutated only
// inside the write critical section, so no reader ever observes a
// half-applied publish.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/packsmith/packsmith/internal/config"
	"github.com/packsmith/packsmith/internal/index"
	"github.com/packsmith/packsmith/internal/logging"
	"github.com/packsmith/packsmith/internal/nupkg"
)

var (
	// ErrNotFound reports an unknown (id, version).
	ErrNotFound = errors.New("package not found")

	// ErrDuplicate reports a publish rejected by the "error" duplicate
	// policy.
	ErrDuplicate = errors.New("package version already exists")
)

const manifestFile = "manifest.json"

// archivePattern matches archive files in the id/version layout, relative
// to the storage root.
const archivePattern = "*/*/*.nupkg"

// Outcome describes what a publish did.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeReplaced Outcome = "replaced"
	OutcomeIgnored  Outcome = "ignored"
)

// Result is the report of a successful publish.
type Result struct {
	ID      string
	Version string
	Outcome Outcome
}

// Store is the filesystem-backed package store. One reader/writer lock
// guards the filesystem layout and the catalog together.
type Store struct {
	root   string
	policy string
	log    *logging.Logger

	mu      sync.RWMutex
	catalog *index.Catalog
}

// Open creates the storage root if needed and rebuilds the catalog from
// the archives found on disk.
func Open(root, duplicatePolicy string, log *logging.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	s := &Store{
		root:    abs,
		policy:  duplicatePolicy,
		log:     log,
		catalog: index.NewCatalog(),
	}

	if err := s.rebuild(); err != nil {
		return nil, err
	}

	log.Info("package store opened",
		zap.String("root", abs),
		zap.String("duplicate_policy", duplicatePolicy),
		zap.Int("packages", s.catalog.Count()),
	)
	return s, nil
}

// Publish validates data as a package archive and persists it. Validation
// happens before the write lock is taken so malformed input never blocks
// readers.
func (s *Store) Publish(data []byte) (Result, error) {
	m, err := nupkg.Parse(data)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.catalog.Has(m.ID, m.Version) {
		switch s.policy {
		case config.DuplicateIgnore:
			return Result{ID: m.ID, Version: m.Version, Outcome: OutcomeIgnored}, nil
		case config.DuplicateError:
			return Result{ID: m.ID, Version: m.Version}, fmt.Errorf("%w: %s %s", ErrDuplicate, m.ID, m.Version)
		case config.DuplicateOverwrite:
			return s.write(m, data, OutcomeReplaced)
		}
	}

	return s.write(m, data, OutcomeCreated)
}

// Versions returns all known versions of id, newest first.
func (s *Store) Versions(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.catalog.Record(id)
	if !ok {
		return nil
	}
	versions := make([]string, len(rec.Versions))
	for i, v := range rec.Versions {
		versions[i] = v.Version
	}
	return versions
}

// Archive returns the stored bytes and indexed entry for (id, version).
func (s *Store) Archive(id, version string) ([]byte, index.VersionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.catalog.Entry(id, version)
	if !ok {
		return nil, index.VersionEntry{}, fmt.Errorf("%w: %s %s", ErrNotFound, id, version)
	}

	data, err := os.ReadFile(entry.ArchivePath)
	if err != nil {
		return nil, index.VersionEntry{}, fmt.Errorf("failed to read archive: %w", err)
	}
	return data, entry, nil
}

// Record returns the catalog snapshot for id.
func (s *Store) Record(id string) (index.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Record(id)
}

// All returns snapshots of every package record.
func (s *Store) All() []index.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.All()
}

// Page returns the catalog slice [skip, skip+take) and the total count.
func (s *Store) Page(skip, take int) ([]index.Record, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Page(skip, take)
}

// Count returns the number of indexed package ids.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Count()
}

// AddDownload bumps the download counter for (id, version).
func (s *Store) AddDownload(id, version string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.catalog.AddDownload(id, version)
}

// write persists the archive and manifest, then updates the catalog.
// Caller holds the write lock.
func (s *Store) write(m *nupkg.Manifest, data []byte, outcome Outcome) (Result, error) {
	dir := filepath.Join(s.root, strings.ToLower(m.ID), strings.ToLower(m.Version))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create package directory: %w", err)
	}

	archivePath := filepath.Join(dir, archiveName(m.ID, m.Version))
	if err := writeFileAtomic(archivePath, data); err != nil {
		return Result{}, fmt.Errorf("failed to write archive: %w", err)
	}

	manifest, err := sonic.MarshalIndent(m, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, manifestFile), manifest); err != nil {
		return Result{}, fmt.Errorf("failed to write manifest: %w", err)
	}

	now := time.Now()
	entry := entryFromManifest(m, archivePath, int64(len(data)), now, now)
	if outcome == OutcomeReplaced {
		if prev, ok := s.catalog.Entry(m.ID, m.Version); ok {
			entry.Published = prev.Published
		}
	}
	s.catalog.Set(m.ID, entry)

	s.log.Info("package stored",
		zap.String("id", m.ID),
		zap.String("version", m.Version),
		zap.String("outcome", string(outcome)),
		zap.Int("bytes", len(data)),
	)
	return Result{ID: m.ID, Version: m.Version, Outcome: outcome}, nil
}

// rebuild scans the storage root and reconstructs the catalog.
func (s *Store) rebuild() error {
	var (
		pathsMu sync.Mutex
		paths   []string
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, s.root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil {
			return nil
		}
		if ok, _ := doublestar.Match(archivePattern, filepath.ToSlash(rel)); !ok {
			return nil
		}
		pathsMu.Lock()
		paths = append(paths, p)
		pathsMu.Unlock()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan storage root: %w", err)
	}

	for _, p := range paths {
		if err := s.loadArchive(p); err != nil {
			s.log.Warn("skipping unreadable archive", zap.String("path", p), zap.Error(err))
		}
	}
	return nil
}

// loadArchive indexes one on-disk archive, preferring the persisted
// manifest and falling back to re-extracting it from the archive.
func (s *Store) loadArchive(archivePath string) error {
	info, err := os.Stat(archivePath)
	if err != nil {
		return err
	}

	m, err := s.loadManifest(filepath.Dir(archivePath))
	if err != nil {
		data, readErr := os.ReadFile(archivePath)
		if readErr != nil {
			return readErr
		}
		m, err = nupkg.Parse(data)
		if err != nil {
			return err
		}
		s.persistManifest(filepath.Dir(archivePath), m)
	}

	s.catalog.Set(m.ID, entryFromManifest(m, archivePath, info.Size(), info.ModTime(), info.ModTime()))
	return nil
}

func (s *Store) loadManifest(dir string) (*nupkg.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m nupkg.Manifest
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.ID == "" || m.Version == "" {
		return nil, fmt.Errorf("manifest in %s is incomplete", dir)
	}
	return &m, nil
}

func (s *Store) persistManifest(dir string, m *nupkg.Manifest) {
	data, err := sonic.MarshalIndent(m, "", "  ")
	if err == nil {
		err = writeFileAtomic(filepath.Join(dir, manifestFile), data)
	}
	if err != nil {
		s.log.Warn("failed to restore manifest", zap.String("dir", dir), zap.Error(err))
	}
}

func entryFromManifest(m *nupkg.Manifest, archivePath string, size int64, published, modified time.Time) index.VersionEntry {
	return index.VersionEntry{
		Version:     m.Version,
		Authors:     m.Authors,
		Description: m.Description,
		Tags:        m.Tags,
		LicenseURL:  m.LicenseURL,
		ProjectURL:  m.ProjectURL,
		IconURL:     m.IconURL,
		HasIcon:     m.HasIcon,
		ArchivePath: archivePath,
		Size:        size,
		Published:   published,
		Modified:    modified,
	}
}

// archiveName builds the canonical lowercase archive filename.
func archiveName(id, version string) string {
	return strings.ToLower(id) + "." + strings.ToLower(version) + ".nupkg"
}

// ArchiveName is the canonical download filename for (id, version).
func ArchiveName(id, version string) string {
	return archiveName(id, version)
}

// writeFileAtomic lands data via write-to-temp-then-rename so a partial
// file is never visible under the final name.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pending-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
