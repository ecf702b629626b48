package api

import (
	"strings"
	"time"

	"github.com/packsmith/packsmith/internal/index"
	"github.com/packsmith/packsmith/internal/store"
)

// The response shapes below follow the NuGet v3 JSON protocol; field names
// are part of the wire contract and must not change.

// ServiceIndexResponse is the protocol discovery document.
type ServiceIndexResponse struct {
	Version   string            `json:"version"`
	Resources []ServiceResource `json:"resources"`
}

// ServiceResource is one sub-resource advertised by the service index.
type ServiceResource struct {
	ID   string `json:"@id"`
	Type string `json:"@type"`
}

// ResponseContext is the JSON-LD context of search responses.
type ResponseContext struct {
	Vocab string `json:"@vocab"`
}

// SearchResultResponse is the search envelope: totalHits always reflects
// the whole catalog, data only the requested page.
type SearchResultResponse struct {
	Context   *ResponseContext `json:"@context"`
	TotalHits int64            `json:"totalHits"`
	Data      []*SearchResult  `json:"data"`
}

// SearchResult is one package summary in a search page.
type SearchResult struct {
	RegistrationIndexURL string                 `json:"registration"`
	ID                   string                 `json:"id"`
	Version              string                 `json:"version"`
	Description          string                 `json:"description,omitempty"`
	Authors              string                 `json:"authors,omitempty"`
	IconURL              string                 `json:"iconUrl,omitempty"`
	LicenseURL           string                 `json:"licenseUrl,omitempty"`
	ProjectURL           string                 `json:"projectUrl,omitempty"`
	Tags                 []string               `json:"tags,omitempty"`
	TotalDownloads       int64                  `json:"totalDownloads"`
	Versions             []*SearchResultVersion `json:"versions"`
}

// SearchResultVersion is one version line of a search result.
type SearchResultVersion struct {
	RegistrationLeafURL string `json:"@id"`
	Version             string `json:"version"`
	Downloads           int64  `json:"downloads"`
}

// RegistrationIndexResponse is the per-package catalog page.
type RegistrationIndexResponse struct {
	RegistrationIndexURL string                   `json:"@id"`
	Type                 []string                 `json:"@type"`
	Count                int                      `json:"count"`
	Pages                []*RegistrationIndexPage `json:"items"`
}

// RegistrationIndexPage groups the version entries. The registry always
// serves a single inlined page.
type RegistrationIndexPage struct {
	RegistrationPageURL string                       `json:"@id"`
	Lower               string                       `json:"lower"`
	Upper               string                       `json:"upper"`
	Count               int                          `json:"count"`
	Items               []*RegistrationIndexPageItem `json:"items"`
}

// RegistrationIndexPageItem carries one version plus its catalog entry.
type RegistrationIndexPageItem struct {
	RegistrationLeafURL string        `json:"@id"`
	PackageContentURL   string        `json:"packageContent"`
	CatalogEntry        *CatalogEntry `json:"catalogEntry"`
}

// CatalogEntry is the full metadata of one (id, version).
type CatalogEntry struct {
	CatalogLeafURL    string    `json:"@id"`
	PackageContentURL string    `json:"packageContent"`
	ID                string    `json:"id"`
	Version           string    `json:"version"`
	Authors           string    `json:"authors,omitempty"`
	Description       string    `json:"description,omitempty"`
	IconURL           string    `json:"iconUrl,omitempty"`
	LicenseURL        string    `json:"licenseUrl,omitempty"`
	ProjectURL        string    `json:"projectUrl,omitempty"`
	Listed            bool      `json:"listed"`
	Published         time.Time `json:"published"`
	Tags              []string  `json:"tags,omitempty"`
}

// RegistrationLeafResponse is the detail document of one version.
type RegistrationLeafResponse struct {
	RegistrationLeafURL  string    `json:"@id"`
	Type                 []string  `json:"@type"`
	Listed               bool      `json:"listed"`
	PackageContentURL    string    `json:"packageContent"`
	Published            time.Time `json:"published"`
	RegistrationIndexURL string    `json:"registration"`
}

// PackageVersionsResponse enumerates the known versions of one id.
type PackageVersionsResponse struct {
	Versions []string `json:"versions"`
}

// PublishResponse is the structured body of every mutating operation.
type PublishResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
	Version string `json:"version,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

// linkBuilder derives resource URLs from one resolved base URL.
type linkBuilder struct {
	base string
}

func (l *linkBuilder) serviceIndexURL() string {
	return l.base + "/index.json"
}

func (l *linkBuilder) searchURL() string {
	return l.base + "/search"
}

func (l *linkBuilder) registrationBaseURL() string {
	return l.base + "/registration"
}

func (l *linkBuilder) packageBaseURL() string {
	return l.base + "/package"
}

func (l *linkBuilder) publishURL() string {
	return l.base + "/publish"
}

func (l *linkBuilder) registrationIndexURL(id string) string {
	return l.registrationBaseURL() + "/" + strings.ToLower(id) + "/index.json"
}

func (l *linkBuilder) registrationLeafURL(id, version string) string {
	return l.registrationBaseURL() + "/" + strings.ToLower(id) + "/" + strings.ToLower(version) + ".json"
}

func (l *linkBuilder) packageDownloadURL(id, version string) string {
	return l.packageBaseURL() + "/" + strings.ToLower(id) + "/" + strings.ToLower(version) + "/" + store.ArchiveName(id, version)
}

func createServiceIndexResponse(l *linkBuilder) *ServiceIndexResponse {
	return &ServiceIndexResponse{
		Version: "3.0.0",
		Resources: []ServiceResource{
			{ID: l.searchURL(), Type: "SearchQueryService"},
			{ID: l.searchURL(), Type: "SearchQueryService/3.0.0-beta"},
			{ID: l.searchURL(), Type: "SearchQueryService/3.0.0-rc"},
			{ID: l.registrationBaseURL(), Type: "RegistrationsBaseUrl"},
			{ID: l.registrationBaseURL(), Type: "RegistrationsBaseUrl/3.0.0-beta"},
			{ID: l.registrationBaseURL(), Type: "RegistrationsBaseUrl/3.0.0-rc"},
			{ID: l.packageBaseURL(), Type: "PackageBaseAddress/3.0.0"},
			{ID: l.publishURL(), Type: "PackagePublish/2.0.0"},
		},
	}
}

func createSearchResultResponse(l *linkBuilder, total int, records []index.Record) *SearchResultResponse {
	data := make([]*SearchResult, 0, len(records))
	for _, rec := range records {
		latest := rec.Latest()

		versions := make([]*SearchResultVersion, len(rec.Versions))
		for i, v := range rec.Versions {
			versions[i] = &SearchResultVersion{
				RegistrationLeafURL: l.registrationLeafURL(rec.ID, v.Version),
				Version:             v.Version,
				Downloads:           v.Downloads,
			}
		}

		data = append(data, &SearchResult{
			RegistrationIndexURL: l.registrationIndexURL(rec.ID),
			ID:                   rec.ID,
			Version:              latest.Version,
			Description:          latest.Description,
			Authors:              latest.Authors,
			IconURL:              latest.IconURL,
			LicenseURL:           latest.LicenseURL,
			ProjectURL:           latest.ProjectURL,
			Tags:                 latest.Tags,
			TotalDownloads:       rec.TotalDownloads(),
			Versions:             versions,
		})
	}

	return &SearchResultResponse{
		Context:   &ResponseContext{Vocab: "http://schema.nuget.org/schema#"},
		TotalHits: int64(total),
		Data:      data,
	}
}

func createRegistrationIndexResponse(l *linkBuilder, rec index.Record) *RegistrationIndexResponse {
	items := make([]*RegistrationIndexPageItem, len(rec.Versions))
	for i, v := range rec.Versions {
		items[i] = &RegistrationIndexPageItem{
			RegistrationLeafURL: l.registrationLeafURL(rec.ID, v.Version),
			PackageContentURL:   l.packageDownloadURL(rec.ID, v.Version),
			CatalogEntry: &CatalogEntry{
				CatalogLeafURL:    l.registrationLeafURL(rec.ID, v.Version),
				PackageContentURL: l.packageDownloadURL(rec.ID, v.Version),
				ID:                rec.ID,
				Version:           v.Version,
				Authors:           v.Authors,
				Description:       v.Description,
				IconURL:           v.IconURL,
				LicenseURL:        v.LicenseURL,
				ProjectURL:        v.ProjectURL,
				Listed:            true,
				Published:         v.Published,
				Tags:              v.Tags,
			},
		}
	}

	// Version lists are newest first; lower/upper describe the range.
	lower := rec.Versions[len(rec.Versions)-1].Version
	upper := rec.Versions[0].Version

	return &RegistrationIndexResponse{
		RegistrationIndexURL: l.registrationIndexURL(rec.ID),
		Type:                 []string{"catalog:CatalogRoot", "PackageRegistration", "catalog:Permalink"},
		Count:                1,
		Pages: []*RegistrationIndexPage{{
			RegistrationPageURL: l.registrationIndexURL(rec.ID),
			Lower:               lower,
			Upper:               upper,
			Count:               len(items),
			Items:               items,
		}},
	}
}

func createRegistrationLeafResponse(l *linkBuilder, id string, entry index.VersionEntry) *RegistrationLeafResponse {
	return &RegistrationLeafResponse{
		RegistrationLeafURL:  l.registrationLeafURL(id, entry.Version),
		Type:                 []string{"Package", "http://schema.nuget.org/catalog#Permalink"},
		Listed:               true,
		PackageContentURL:    l.packageDownloadURL(id, entry.Version),
		Published:            entry.Published,
		RegistrationIndexURL: l.registrationIndexURL(id),
	}
}
