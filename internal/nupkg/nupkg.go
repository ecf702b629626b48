// Package nupkg parses NuGet package archives: a zip container holding a
// .nuspec manifest at its root.
package nupkg

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/flate"

	"github.com/packsmith/packsmith/internal/semver"
)

// ErrInvalidArchive reports a malformed archive or manifest. Callers map
// it to a 400 response.
var ErrInvalidArchive = errors.New("invalid package archive")

// MaxArchiveSize bounds accepted uploads.
const MaxArchiveSize = 256 * 1024 * 1024

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Manifest is the metadata extracted from the .nuspec document.
type Manifest struct {
	ID          string   `json:"id"`
	Version     string   `json:"version"`
	Authors     string   `json:"authors,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	LicenseURL  string   `json:"licenseUrl,omitempty"`
	ProjectURL  string   `json:"projectUrl,omitempty"`
	IconURL     string   `json:"iconUrl,omitempty"`
	HasIcon     bool     `json:"hasIcon,omitempty"`
}

type nuspec struct {
	Metadata struct {
		ID          string `xml:"id"`
		Version     string `xml:"version"`
		Authors     string `xml:"authors"`
		Description string `xml:"description"`
		Tags        string `xml:"tags"`
		LicenseURL  string `xml:"licenseUrl"`
		ProjectURL  string `xml:"projectUrl"`
		IconURL     string `xml:"iconUrl"`
		Icon        string `xml:"icon"`
	} `xml:"metadata"`
}

// Parse validates the archive container and extracts its manifest. It does
// not retain data.
func Parse(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidArchive)
	}
	if len(data) > MaxArchiveSize {
		return nil, fmt.Errorf("%w: archive exceeds %d bytes", ErrInvalidArchive, MaxArchiveSize)
	}

	if mtype := mimetype.Detect(data); !mtype.Is("application/zip") {
		return nil, fmt.Errorf("%w: unexpected content type %s", ErrInvalidArchive, mtype)
	}

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	r.RegisterDecompressor(zip.Deflate, func(in io.Reader) io.ReadCloser {
		return flate.NewReader(in)
	})

	f, err := findNuspec(r)
	if err != nil {
		return nil, err
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer rc.Close()

	m, err := ParseNuspec(rc)
	if err != nil {
		return nil, err
	}

	if !m.HasIcon {
		m.HasIcon = hasIconFile(r)
	}
	return m, nil
}

// ParseNuspec decodes and validates a manifest document.
func ParseNuspec(r io.Reader) (*Manifest, error) {
	var doc nuspec
	if err := xml.NewDecoder(io.LimitReader(r, 4*1024*1024)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: bad manifest: %v", ErrInvalidArchive, err)
	}

	md := doc.Metadata
	if md.ID == "" || !idPattern.MatchString(md.ID) {
		return nil, fmt.Errorf("%w: missing or malformed package id %q", ErrInvalidArchive, md.ID)
	}
	if _, err := semver.Parse(md.Version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	return &Manifest{
		ID:          md.ID,
		Version:     md.Version,
		Authors:     md.Authors,
		Description: md.Description,
		Tags:        splitTags(md.Tags),
		LicenseURL:  md.LicenseURL,
		ProjectURL:  md.ProjectURL,
		IconURL:     md.IconURL,
		HasIcon:     md.Icon != "",
	}, nil
}

// findNuspec locates the manifest entry at the archive root.
func findNuspec(r *zip.Reader) (*zip.File, error) {
	for _, f := range r.File {
		if strings.Contains(f.Name, "/") {
			continue
		}
		if strings.EqualFold(path.Ext(f.Name), ".nuspec") {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: no manifest found", ErrInvalidArchive)
}

func hasIconFile(r *zip.Reader) bool {
	for _, f := range r.File {
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".png", ".jpg", ".jpeg", ".ico":
			return true
		}
	}
	return false
}

func splitTags(tags string) []string {
	fields := strings.FieldsFunc(tags, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
