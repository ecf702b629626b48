package nupkg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packsmith/packsmith/internal/nupkg/nupkgtest"
)

func TestParseExtractsManifest(t *testing.T) {
	data := nupkgtest.Build(nupkgtest.Spec{
		ID:          "FlashCap",
		Version:     "1.10.0",
		Authors:     "Kouji Matsui",
		Description: "Camera capture library",
		Tags:        "camera capture video",
		ProjectURL:  "https://example.com/flashcap",
		ExtraFiles:  map[string]string{"lib/net8.0/FlashCap.dll": "bin"},
	})

	m, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "FlashCap", m.ID)
	assert.Equal(t, "1.10.0", m.Version)
	assert.Equal(t, "Kouji Matsui", m.Authors)
	assert.Equal(t, "Camera capture library", m.Description)
	assert.Equal(t, []string{"camera", "capture", "video"}, m.Tags)
	assert.Equal(t, "https://example.com/flashcap", m.ProjectURL)
}

func TestParseRejectsNonZipBody(t *testing.T) {
	_, err := Parse([]byte("not a zip archive"))
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestParseRejectsEmptyBody(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestParseRejectsMissingManifest(t *testing.T) {
	data := nupkgtest.Build(nupkgtest.Spec{
		OmitNuspec: true,
		ExtraFiles: map[string]string{"lib/whatever.dll": "bin"},
	})

	_, err := Parse(data)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestParseRejectsMalformedVersion(t *testing.T) {
	data := nupkgtest.BuildSimple("Sample", "not-a-version")

	_, err := Parse(data)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestParseRejectsMalformedID(t *testing.T) {
	data := nupkgtest.BuildSimple("Bad/Name", "1.0.0")

	_, err := Parse(data)
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestParseNuspecIconPresence(t *testing.T) {
	doc := `<package><metadata>
		<id>Iconic</id>
		<version>2.0.0</version>
		<icon>images/icon.png</icon>
	</metadata></package>`

	m, err := ParseNuspec(strings.NewReader(doc))
	require.NoError(t, err)
	assert.True(t, m.HasIcon)
}

func TestParseDetectsIconFileInArchive(t *testing.T) {
	data := nupkgtest.Build(nupkgtest.Spec{
		ID:         "WithIcon",
		Version:    "1.0.0",
		ExtraFiles: map[string]string{"images/icon.png": "png-bytes"},
	})

	m, err := Parse(data)
	require.NoError(t, err)
	assert.True(t, m.HasIcon)
}
