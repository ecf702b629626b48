package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packsmith/packsmith/internal/config"
	"github.com/packsmith/packsmith/internal/logging"
	"github.com/packsmith/packsmith/internal/nupkg/nupkgtest"
)

const (
	adminUser     = "admin"
	adminPassword = "correct horse battery staple"
)

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.Root = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg, logging.NewNop())
	require.NoError(t, err)
	return srv
}

type request struct {
	method  string
	path    string
	body    []byte
	headers map[string]string
	cookies []*http.Cookie
	basic   [2]string
}

func (s *Server) do(r request) *httptest.ResponseRecorder {
	req := httptest.NewRequest(r.method, r.path, bytes.NewReader(r.body))
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}
	if r.basic[0] != "" {
		req.SetBasicAuth(r.basic[0], r.basic[1])
	}
	w := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), out))
}

func TestServiceIndex(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(request{method: http.MethodGet, path: "/index.json"})
	require.Equal(t, http.StatusOK, w.Code)

	var idx struct {
		Version   string `json:"version"`
		Resources []struct {
			ID   string `json:"@id"`
			Type string `json:"@type"`
		} `json:"resources"`
	}
	decode(t, w, &idx)

	assert.Equal(t, "3.0.0", idx.Version)
	types := make(map[string]string)
	for _, r := range idx.Resources {
		types[r.Type] = r.ID
	}
	assert.Contains(t, types, "SearchQueryService")
	assert.Contains(t, types, "RegistrationsBaseUrl")
	assert.Contains(t, types, "PackageBaseAddress/3.0.0")
	assert.Contains(t, types, "PackagePublish/2.0.0")
	assert.Equal(t, "http://example.com/search", types["SearchQueryService"])
}

func TestPublishAndDownload(t *testing.T) {
	srv := newTestServer(t, nil)
	archive := nupkgtest.BuildSimple("FlashCap", "1.10.0")

	w := srv.do(request{method: http.MethodPut, path: "/publish", body: archive})
	require.Equal(t, http.StatusCreated, w.Code)

	var pub struct {
		Message string `json:"message"`
		ID      string `json:"id"`
		Version string `json:"version"`
		Outcome string `json:"outcome"`
	}
	decode(t, w, &pub)
	assert.Equal(t, "FlashCap", pub.ID)
	assert.Equal(t, "1.10.0", pub.Version)
	assert.Equal(t, "created", pub.Outcome)

	// Enumeration is case-insensitive.
	w = srv.do(request{method: http.MethodGet, path: "/package/flashcap/index.json"})
	require.Equal(t, http.StatusOK, w.Code)
	var versions struct {
		Versions []string `json:"versions"`
	}
	decode(t, w, &versions)
	assert.Equal(t, []string{"1.10.0"}, versions.Versions)

	w = srv.do(request{method: http.MethodGet, path: "/package/FlashCap/1.10.0/flashcap.1.10.0.nupkg"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, archive, w.Body.Bytes())

	// The filename element must match the canonical archive name.
	w = srv.do(request{method: http.MethodGet, path: "/package/FlashCap/1.10.0/wrong.nupkg"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublishDuplicateIgnored(t *testing.T) {
	srv := newTestServer(t, nil)
	archive := nupkgtest.BuildSimple("Dup", "1.0.0")

	w := srv.do(request{method: http.MethodPut, path: "/publish", body: archive})
	require.Equal(t, http.StatusCreated, w.Code)

	w = srv.do(request{method: http.MethodPut, path: "/publish", body: archive})
	require.Equal(t, http.StatusOK, w.Code)
	var pub struct {
		Message string `json:"message"`
		Outcome string `json:"outcome"`
	}
	decode(t, w, &pub)
	assert.Equal(t, "Package already exists and was ignored", pub.Message)
	assert.Equal(t, "ignored", pub.Outcome)
}

func TestPublishDuplicateError(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Storage.DuplicatePolicy = config.DuplicateError
	})
	archive := nupkgtest.BuildSimple("Dup", "1.0.0")

	w := srv.do(request{method: http.MethodPut, path: "/publish", body: archive})
	require.Equal(t, http.StatusCreated, w.Code)

	w = srv.do(request{method: http.MethodPut, path: "/publish", body: archive})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPublishDuplicateOverwrite(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Storage.DuplicatePolicy = config.DuplicateOverwrite
	})
	archive := nupkgtest.BuildSimple("Dup", "1.0.0")

	w := srv.do(request{method: http.MethodPut, path: "/publish", body: archive})
	require.Equal(t, http.StatusCreated, w.Code)

	w = srv.do(request{method: http.MethodPut, path: "/publish", body: archive})
	require.Equal(t, http.StatusCreated, w.Code)
	var pub struct {
		Outcome string `json:"outcome"`
	}
	decode(t, w, &pub)
	assert.Equal(t, "replaced", pub.Outcome)
}

func TestPublishInvalidArchive(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(request{method: http.MethodPut, path: "/publish", body: []byte("not a zip")})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMissingPackageResponse(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(request{method: http.MethodGet, path: "/package/ghost/index.json"})
	require.Equal(t, http.StatusOK, w.Code)
	var versions struct {
		Versions []string `json:"versions"`
	}
	decode(t, w, &versions)
	assert.Empty(t, versions.Versions)
	assert.Contains(t, w.Body.String(), `"versions":[]`)

	srv = newTestServer(t, func(cfg *config.Config) {
		cfg.Storage.MissingPackageResponse = config.MissingNotFound
	})
	w = srv.do(request{method: http.MethodGet, path: "/package/ghost/index.json"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, spec := range []nupkgtest.Spec{
		{ID: "Alpha", Version: "1.0.0", Description: "first"},
		{ID: "Alpha", Version: "2.0.0", Description: "first, newer"},
		{ID: "Beta", Version: "0.1.0", Description: "second"},
	} {
		w := srv.do(request{method: http.MethodPut, path: "/publish", body: nupkgtest.Build(spec)})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := srv.do(request{method: http.MethodGet, path: "/search"})
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		TotalHits int64 `json:"totalHits"`
		Data      []struct {
			ID       string `json:"id"`
			Version  string `json:"version"`
			Versions []struct {
				Version   string `json:"version"`
				Downloads int64  `json:"downloads"`
			} `json:"versions"`
		} `json:"data"`
	}
	decode(t, w, &res)

	require.EqualValues(t, 2, res.TotalHits)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "Alpha", res.Data[0].ID)
	assert.Equal(t, "2.0.0", res.Data[0].Version)
	require.Len(t, res.Data[0].Versions, 2)

	// q is accepted but never filters; pagination still applies.
	w = srv.do(request{method: http.MethodGet, path: "/search?q=alpha&skip=1&take=1"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &res)
	assert.EqualValues(t, 2, res.TotalHits)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Beta", res.Data[0].ID)
}

func TestRegistration(t *testing.T) {
	srv := newTestServer(t, nil)
	w := srv.do(request{method: http.MethodPut, path: "/publish", body: nupkgtest.BuildSimple("Pkg", "1.0.0")})
	require.Equal(t, http.StatusCreated, w.Code)
	w = srv.do(request{method: http.MethodPut, path: "/publish", body: nupkgtest.BuildSimple("Pkg", "1.10.0")})
	require.Equal(t, http.StatusCreated, w.Code)

	w = srv.do(request{method: http.MethodGet, path: "/registration/pkg/index.json"})
	require.Equal(t, http.StatusOK, w.Code)

	var idx struct {
		Count int `json:"count"`
		Pages []struct {
			Lower string `json:"lower"`
			Upper string `json:"upper"`
			Items []struct {
				CatalogEntry struct {
					ID      string `json:"id"`
					Version string `json:"version"`
				} `json:"catalogEntry"`
				PackageContent string `json:"packageContent"`
			} `json:"items"`
		} `json:"items"`
	}
	decode(t, w, &idx)

	require.Equal(t, 1, idx.Count)
	require.Len(t, idx.Pages, 1)
	require.Len(t, idx.Pages[0].Items, 2)
	assert.Equal(t, "1.0.0", idx.Pages[0].Lower)
	assert.Equal(t, "1.10.0", idx.Pages[0].Upper)
	assert.Equal(t, "1.10.0", idx.Pages[0].Items[0].CatalogEntry.Version)
	assert.Equal(t, "http://example.com/package/pkg/1.10.0/pkg.1.10.0.nupkg", idx.Pages[0].Items[0].PackageContent)

	w = srv.do(request{method: http.MethodGet, path: "/registration/pkg/1.0.0.json"})
	require.Equal(t, http.StatusOK, w.Code)
	var leaf struct {
		Listed         bool   `json:"listed"`
		PackageContent string `json:"packageContent"`
	}
	decode(t, w, &leaf)
	assert.True(t, leaf.Listed)
	assert.Equal(t, "http://example.com/package/pkg/1.0.0/pkg.1.0.0.nupkg", leaf.PackageContent)

	w = srv.do(request{method: http.MethodGet, path: "/registration/ghost/index.json"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadCounts(t *testing.T) {
	srv := newTestServer(t, nil)
	w := srv.do(request{method: http.MethodPut, path: "/publish", body: nupkgtest.BuildSimple("Pkg", "1.0.0")})
	require.Equal(t, http.StatusCreated, w.Code)

	for range 3 {
		w = srv.do(request{method: http.MethodGet, path: "/package/pkg/1.0.0/pkg.1.0.0.nupkg"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = srv.do(request{method: http.MethodGet, path: "/search"})
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Data []struct {
			TotalDownloads int64 `json:"totalDownloads"`
		} `json:"data"`
	}
	decode(t, w, &res)
	require.Len(t, res.Data, 1)
	assert.EqualValues(t, 3, res.Data[0].TotalDownloads)
}

func withAdmin(cfg *config.Config) {
	cfg.Auth.InitialAdmin = adminUser
	cfg.Auth.InitialAdminPassword = adminPassword
}

func TestPublishModeGating(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Mode = "publish"
		withAdmin(cfg)
	})
	archive := nupkgtest.BuildSimple("Pkg", "1.0.0")

	// Reads stay open under publish mode.
	w := srv.do(request{method: http.MethodGet, path: "/search"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(request{method: http.MethodPut, path: "/publish", body: archive})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(request{method: http.MethodPut, path: "/publish", body: archive, basic: [2]string{adminUser, adminPassword}})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestFullModeGatesReads(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Mode = "full"
		withAdmin(cfg)
	})

	w := srv.do(request{method: http.MethodGet, path: "/search"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(request{method: http.MethodGet, path: "/search", basic: [2]string{adminUser, adminPassword}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestZeroUsersFailClosed(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Mode = "full"
	})

	w := srv.do(request{method: http.MethodGet, path: "/search"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Credentials cannot help when no users exist.
	w = srv.do(request{method: http.MethodGet, path: "/search", basic: [2]string{"ghost", "whatever"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIKeyPublish(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Mode = "publish"
		withAdmin(cfg)
	})

	// Mint an API credential through the self-service endpoint.
	w := srv.do(request{
		method: http.MethodPost,
		path:   "/api/credentials",
		body:   []byte(`{"label":"ci"}`),
		headers: map[string]string{
			"Content-Type": "application/json",
		},
		basic: [2]string{adminUser, adminPassword},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var cred struct {
		Label  string `json:"label"`
		Secret string `json:"secret"`
	}
	decode(t, w, &cred)
	require.Equal(t, "ci", cred.Label)
	require.NotEmpty(t, cred.Secret)

	w = srv.do(request{
		method:  http.MethodPut,
		path:    "/publish",
		body:    nupkgtest.BuildSimple("Pkg", "1.0.0"),
		headers: map[string]string{"X-NuGet-ApiKey": adminUser + ":" + cred.Secret},
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Revoked credentials stop working.
	w = srv.do(request{method: http.MethodDelete, path: "/api/credentials/ci", basic: [2]string{adminUser, adminPassword}})
	require.Equal(t, http.StatusOK, w.Code)
	w = srv.do(request{
		method:  http.MethodPut,
		path:    "/publish",
		body:    nupkgtest.BuildSimple("Pkg", "2.0.0"),
		headers: map[string]string{"X-NuGet-ApiKey": adminUser + ":" + cred.Secret},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginSessionLogout(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Mode = "publish"
		withAdmin(cfg)
	})

	w := srv.do(request{
		method:  http.MethodPost,
		path:    "/api/login",
		body:    []byte(`{"username":"admin","password":"` + adminPassword + `"}`),
		headers: map[string]string{"Content-Type": "application/json"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "packsmith_session" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	w = srv.do(request{method: http.MethodGet, path: "/api/session", cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Authenticated bool   `json:"authenticated"`
		Username      string `json:"username"`
		Role          string `json:"role"`
	}
	decode(t, w, &status)
	assert.True(t, status.Authenticated)
	assert.Equal(t, adminUser, status.Username)
	assert.Equal(t, "admin", status.Role)

	// The session cookie also authorizes gated endpoints.
	w = srv.do(request{method: http.MethodPut, path: "/publish", body: nupkgtest.BuildSimple("Pkg", "1.0.0"), cookies: []*http.Cookie{cookie}})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = srv.do(request{method: http.MethodPost, path: "/api/logout", cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(request{method: http.MethodGet, path: "/api/session", cookies: []*http.Cookie{cookie}})
	decode(t, w, &status)
	assert.False(t, status.Authenticated)
}

func TestLoginFailureIsUniform(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		withAdmin(cfg)
	})

	unknown := srv.do(request{
		method:  http.MethodPost,
		path:    "/api/login",
		body:    []byte(`{"username":"ghost","password":"nope nope nope"}`),
		headers: map[string]string{"Content-Type": "application/json"},
	})
	wrongPassword := srv.do(request{
		method:  http.MethodPost,
		path:    "/api/login",
		body:    []byte(`{"username":"admin","password":"nope nope nope"}`),
		headers: map[string]string{"Content-Type": "application/json"},
	})

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, unknown.Body.String(), wrongPassword.Body.String())
}

func TestUserManagementRoles(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Mode = "publish"
		withAdmin(cfg)
	})

	// Create a read-only user.
	w := srv.do(request{
		method:  http.MethodPost,
		path:    "/api/users",
		body:    []byte(`{"username":"reader","password":"` + adminPassword + `","role":"read"}`),
		headers: map[string]string{"Content-Type": "application/json"},
		basic:   [2]string{adminUser, adminPassword},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// A read user is authenticated but not authorized to publish.
	w = srv.do(request{method: http.MethodPut, path: "/publish", body: nupkgtest.BuildSimple("Pkg", "1.0.0"), basic: [2]string{"reader", adminPassword}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Nor to manage users.
	w = srv.do(request{method: http.MethodGet, path: "/api/users", basic: [2]string{"reader", adminPassword}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Promote to publish.
	w = srv.do(request{
		method:  http.MethodPut,
		path:    "/api/users/reader",
		body:    []byte(`{"role":"publish"}`),
		headers: map[string]string{"Content-Type": "application/json"},
		basic:   [2]string{adminUser, adminPassword},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(request{method: http.MethodPut, path: "/publish", body: nupkgtest.BuildSimple("Pkg", "1.0.0"), basic: [2]string{"reader", adminPassword}})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Delete and verify access is gone.
	w = srv.do(request{method: http.MethodDelete, path: "/api/users/reader", basic: [2]string{adminUser, adminPassword}})
	require.Equal(t, http.StatusOK, w.Code)
	w = srv.do(request{method: http.MethodPut, path: "/publish", body: nupkgtest.BuildSimple("Pkg", "2.0.0"), basic: [2]string{"reader", adminPassword}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInitialAdminSeededOnce(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Root = root
	withAdmin(cfg)

	srv, err := New(cfg, logging.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, srv.users.Count())

	// A second start with the same root must not duplicate the account.
	srv, err = New(cfg, logging.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, srv.users.Count())
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)
	w := srv.do(request{method: http.MethodPut, path: "/publish", body: nupkgtest.BuildSimple("Pkg", "1.0.0")})
	require.Equal(t, http.StatusCreated, w.Code)

	w = srv.do(request{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, w.Code)
	var health struct {
		Status   string `json:"status"`
		Packages int    `json:"packages"`
	}
	decode(t, w, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Packages)

	w = srv.do(request{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "packsmith_packages_total")
}

func TestRestartRebuildsFromDisk(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Root = root

	srv, err := New(cfg, logging.NewNop())
	require.NoError(t, err)
	w := srv.do(request{method: http.MethodPut, path: "/publish", body: nupkgtest.BuildSimple("Keep", "1.2.3")})
	require.Equal(t, http.StatusCreated, w.Code)

	srv, err = New(cfg, logging.NewNop())
	require.NoError(t, err)
	w = srv.do(request{method: http.MethodGet, path: "/package/keep/index.json"})
	require.Equal(t, http.StatusOK, w.Code)
	var versions struct {
		Versions []string `json:"versions"`
	}
	decode(t, w, &versions)
	assert.Equal(t, []string{"1.2.3"}, versions.Versions)
}
