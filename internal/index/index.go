// Package index holds the in-memory package catalog derived from the
// filesystem store. The catalog itself is a plain data structure: the
// store guards it with its reader/writer lock, download counters are
// atomic so they can advance under the shared read lock.
package index

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/packsmith/packsmith/internal/semver"
)

// VersionEntry is the indexed metadata of one published (id, version).
type VersionEntry struct {
	Version     string    `json:"version"`
	Authors     string    `json:"authors,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	LicenseURL  string    `json:"licenseUrl,omitempty"`
	ProjectURL  string    `json:"projectUrl,omitempty"`
	IconURL     string    `json:"iconUrl,omitempty"`
	HasIcon     bool      `json:"hasIcon,omitempty"`
	ArchivePath string    `json:"archivePath"`
	Size        int64     `json:"size"`
	Published   time.Time `json:"published"`
	Modified    time.Time `json:"modified"`
	Downloads   int64     `json:"-"`
}

// Record is a snapshot of one package: display-cased id plus all known
// versions, newest first.
type Record struct {
	ID       string
	Versions []VersionEntry
}

// Latest returns the newest version entry of the record.
func (r Record) Latest() VersionEntry {
	return r.Versions[0]
}

// TotalDownloads sums the download counters across versions.
func (r Record) TotalDownloads() int64 {
	var total int64
	for _, v := range r.Versions {
		total += v.Downloads
	}
	return total
}

type storedEntry struct {
	meta      VersionEntry
	downloads atomic.Int64
}

type storedRecord struct {
	displayID string
	versions  map[string]*storedEntry // keyed by lowercased version
}

// Catalog is the in-memory package catalog, keyed case-insensitively.
type Catalog struct {
	records map[string]*storedRecord
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{records: make(map[string]*storedRecord)}
}

// Set inserts or replaces the entry for (id, version). The display case of
// the id is fixed by the first publish; a replaced entry keeps its
// download counter.
func (c *Catalog) Set(id string, entry VersionEntry) {
	key := strings.ToLower(id)
	rec, ok := c.records[key]
	if !ok {
		rec = &storedRecord{displayID: id, versions: make(map[string]*storedEntry)}
		c.records[key] = rec
	}

	vkey := strings.ToLower(entry.Version)
	if prev, ok := rec.versions[vkey]; ok {
		next := &storedEntry{meta: entry}
		next.downloads.Store(prev.downloads.Load())
		rec.versions[vkey] = next
		return
	}
	rec.versions[vkey] = &storedEntry{meta: entry}
}

// Has reports whether (id, version) is indexed.
func (c *Catalog) Has(id, version string) bool {
	rec, ok := c.records[strings.ToLower(id)]
	if !ok {
		return false
	}
	_, ok = rec.versions[strings.ToLower(version)]
	return ok
}

// Entry returns a snapshot of the entry for (id, version).
func (c *Catalog) Entry(id, version string) (VersionEntry, bool) {
	rec, ok := c.records[strings.ToLower(id)]
	if !ok {
		return VersionEntry{}, false
	}
	e, ok := rec.versions[strings.ToLower(version)]
	if !ok {
		return VersionEntry{}, false
	}
	return e.snapshot(), true
}

// Record returns a snapshot of all versions of id, newest first.
func (c *Catalog) Record(id string) (Record, bool) {
	rec, ok := c.records[strings.ToLower(id)]
	if !ok {
		return Record{}, false
	}
	return rec.snapshot(), true
}

// All returns snapshots of every record ordered by id.
func (c *Catalog) All() []Record {
	keys := make([]string, 0, len(c.records))
	for k := range c.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.records[k].snapshot())
	}
	return out
}

// Page returns the catalog slice [skip, skip+take) plus the total record
// count. A non-positive take returns an empty page.
func (c *Catalog) Page(skip, take int) ([]Record, int) {
	all := c.All()
	total := len(all)

	if skip < 0 {
		skip = 0
	}
	if skip >= total || take <= 0 {
		return []Record{}, total
	}
	end := skip + take
	if end > total {
		end = total
	}
	return all[skip:end], total
}

// Count returns the number of indexed package ids.
func (c *Catalog) Count() int {
	return len(c.records)
}

// AddDownload advances the download counter for (id, version). Safe under
// the store's shared read lock.
func (c *Catalog) AddDownload(id, version string) {
	rec, ok := c.records[strings.ToLower(id)]
	if !ok {
		return
	}
	if e, ok := rec.versions[strings.ToLower(version)]; ok {
		e.downloads.Add(1)
	}
}

func (e *storedEntry) snapshot() VersionEntry {
	meta := e.meta
	meta.Downloads = e.downloads.Load()
	return meta
}

func (r *storedRecord) snapshot() Record {
	raw := make([]string, 0, len(r.versions))
	byVersion := make(map[string]VersionEntry, len(r.versions))
	for k, e := range r.versions {
		raw = append(raw, k)
		byVersion[k] = e.snapshot()
	}

	sorted := semver.Sort(raw, semver.Descending)
	versions := make([]VersionEntry, len(sorted))
	for i, v := range sorted {
		versions[i] = byVersion[v]
	}

	return Record{ID: r.displayID, Versions: versions}
}
