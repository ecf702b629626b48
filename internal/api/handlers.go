// Package api implements the registry's HTTP surface: the NuGet v3
// protocol endpoints plus the JSON administration API.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/packsmith/packsmith/internal/auth"
	"github.com/packsmith/packsmith/internal/baseurl"
	"github.com/packsmith/packsmith/internal/config"
	"github.com/packsmith/packsmith/internal/logging"
	"github.com/packsmith/packsmith/internal/metrics"
	"github.com/packsmith/packsmith/internal/nupkg"
	"github.com/packsmith/packsmith/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handlers carries the wired components behind the HTTP surface.
type Handlers struct {
	store    *store.Store
	users    *auth.Users
	sessions *auth.Sessions
	resolver *baseurl.Resolver
	cfg      *config.Config
	metrics  *metrics.Metrics
	log      *logging.Logger
}

// NewHandlers wires the HTTP surface to its components.
func NewHandlers(st *store.Store, users *auth.Users, sessions *auth.Sessions, resolver *baseurl.Resolver, cfg *config.Config, m *metrics.Metrics, log *logging.Logger) *Handlers {
	return &Handlers{
		store:    st,
		users:    users,
		sessions: sessions,
		resolver: resolver,
		cfg:      cfg,
		metrics:  m,
		log:      log.Named("api"),
	}
}

func (h *Handlers) links(c *gin.Context) *linkBuilder {
	return &linkBuilder{base: h.resolver.Resolve(c.Request)}
}

func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

// ServiceIndex serves the protocol discovery document.
func (h *Handlers) ServiceIndex(c *gin.Context) {
	c.JSON(http.StatusOK, createServiceIndexResponse(h.links(c)))
}

// Search serves a catalog page. The q parameter is accepted but not
// applied: clients filter the returned page themselves.
func (h *Handlers) Search(c *gin.Context) {
	skip := queryInt(c, "skip", 0)
	take := queryInt(c, "take", defaultPageSize)
	if take > maxPageSize {
		take = maxPageSize
	}

	records, total := h.store.Page(skip, take)
	c.JSON(http.StatusOK, createSearchResultResponse(h.links(c), total, records))
}

// Registration serves both the registration index and version leaves:
// the trailing path element is either "index.json" or "{version}.json".
func (h *Handlers) Registration(c *gin.Context) {
	id := c.Param("id")
	file := c.Param("file")

	if file == "index.json" {
		h.registrationIndex(c, id)
		return
	}

	version, ok := strings.CutSuffix(file, ".json")
	if !ok {
		apiError(c, http.StatusNotFound, "not found")
		return
	}
	h.registrationLeaf(c, id, version)
}

func (h *Handlers) registrationIndex(c *gin.Context, id string) {
	rec, ok := h.store.Record(id)
	if !ok {
		apiError(c, http.StatusNotFound, "package not found")
		return
	}
	c.JSON(http.StatusOK, createRegistrationIndexResponse(h.links(c), rec))
}

func (h *Handlers) registrationLeaf(c *gin.Context, id, version string) {
	rec, ok := h.store.Record(id)
	if !ok {
		apiError(c, http.StatusNotFound, "package not found")
		return
	}
	for _, entry := range rec.Versions {
		if strings.EqualFold(entry.Version, version) {
			c.JSON(http.StatusOK, createRegistrationLeafResponse(h.links(c), rec.ID, entry))
			return
		}
	}
	apiError(c, http.StatusNotFound, "package not found")
}

// PackageVersions enumerates the versions of one id. The route shares its
// shape with downloads, so the second path element must be "index.json".
func (h *Handlers) PackageVersions(c *gin.Context) {
	if c.Param("version") != "index.json" {
		apiError(c, http.StatusNotFound, "not found")
		return
	}

	id := c.Param("id")
	versions := h.store.Versions(id)
	if len(versions) == 0 {
		if h.cfg.Storage.MissingPackageResponse == config.MissingNotFound {
			apiError(c, http.StatusNotFound, "package not found")
			return
		}
		c.JSON(http.StatusOK, &PackageVersionsResponse{Versions: []string{}})
		return
	}
	c.JSON(http.StatusOK, &PackageVersionsResponse{Versions: versions})
}

// DownloadPackage streams the archive bytes for (id, version). The
// filename element must match the canonical archive name.
func (h *Handlers) DownloadPackage(c *gin.Context) {
	id := c.Param("id")
	version := c.Param("version")
	filename := c.Param("filename")

	if filename != store.ArchiveName(id, version) {
		apiError(c, http.StatusNotFound, "package not found")
		return
	}

	data, _, err := h.store.Archive(id, version)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apiError(c, http.StatusNotFound, "package not found")
			return
		}
		h.log.Error("archive read failed",
			zap.String("id", id),
			zap.String("version", version),
			zap.Error(err))
		apiError(c, http.StatusInternalServerError, "internal error")
		return
	}

	h.store.AddDownload(id, version)
	h.metrics.DownloadsTotal.Inc()

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// Publish ingests an uploaded archive and applies the duplicate policy.
func (h *Handlers) Publish(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, nupkg.MaxArchiveSize+1))
	if err != nil {
		apiError(c, http.StatusBadRequest, "failed to read upload")
		return
	}
	if int64(len(body)) > nupkg.MaxArchiveSize {
		apiError(c, http.StatusBadRequest, "archive too large")
		return
	}

	res, err := h.store.Publish(body)
	switch {
	case err == nil:
	case errors.Is(err, nupkg.ErrInvalidArchive):
		apiError(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, &PublishResponse{
			Message: "package already exists",
			ID:      res.ID,
			Version: res.Version,
		})
		return
	default:
		h.log.Error("publish failed", zap.Error(err))
		apiError(c, http.StatusInternalServerError, "internal error")
		return
	}

	h.metrics.PublishesTotal.WithLabelValues(string(res.Outcome)).Inc()

	switch res.Outcome {
	case store.OutcomeIgnored:
		c.JSON(http.StatusOK, &PublishResponse{
			Message: "Package already exists and was ignored",
			ID:      res.ID,
			Version: res.Version,
			Outcome: string(res.Outcome),
		})
	case store.OutcomeReplaced:
		c.JSON(http.StatusCreated, &PublishResponse{
			Message: "Package replaced",
			ID:      res.ID,
			Version: res.Version,
			Outcome: string(res.Outcome),
		})
	default:
		c.JSON(http.StatusCreated, &PublishResponse{
			Message: "Package created",
			ID:      res.ID,
			Version: res.Version,
			Outcome: string(res.Outcome),
		})
	}
}

// Health reports liveness plus the indexed package count.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"packages": h.store.Count(),
	})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
