// Package nupkgtest builds in-memory package archives for tests.
package nupkgtest

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Spec describes the archive to build.
type Spec struct {
	ID          string
	Version     string
	Authors     string
	Description string
	Tags        string
	ProjectURL  string

	// ExtraFiles maps archive paths to contents.
	ExtraFiles map[string]string

	// OmitNuspec produces a zip without a manifest.
	OmitNuspec bool
}

// Build returns the archive bytes for spec.
func Build(spec Spec) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	if !spec.OmitNuspec {
		f, err := w.Create(spec.ID + ".nuspec")
		if err != nil {
			panic(err)
		}
		fmt.Fprintf(f, `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd">
  <metadata>
    <id>%s</id>
    <version>%s</version>
    <authors>%s</authors>
    <description>%s</description>
    <tags>%s</tags>
    <projectUrl>%s</projectUrl>
  </metadata>
</package>`, spec.ID, spec.Version, spec.Authors, spec.Description, spec.Tags, spec.ProjectURL)
	}

	for name, content := range spec.ExtraFiles {
		f, err := w.Create(name)
		if err != nil {
			panic(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			panic(err)
		}
	}

	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// BuildSimple returns an archive with only id and version set.
func BuildSimple(id, version string) []byte {
	return Build(Spec{
		ID:          id,
		Version:     version,
		Authors:     "Test Author",
		Description: "Test package",
		ExtraFiles:  map[string]string{"lib/net8.0/" + id + ".dll": "binary"},
	})
}
