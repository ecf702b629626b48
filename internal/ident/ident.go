// Package ident provides centralized token and ID generation.
//
// Tokens are prefixed ULIDs: lexicographically sortable, unique across
// the process, and recognizable in logs (sess_*, req_*).
package ident

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes identify the token domain in logs and cookies.
const (
	SessionPrefix = "sess"
	RequestPrefix = "req"
)

// Generator generates prefixed ULID tokens.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator backed by crypto/rand.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator with the given entropy source.
// Deterministic sources are useful in tests.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return prefix + "_" + g.Generate().String()
}

// NewSessionToken mints a login session token.
func NewSessionToken() string {
	return Default().GenerateWithPrefix(SessionPrefix)
}

// NewRequestID mints a per-request correlation ID.
func NewRequestID() string {
	return Default().GenerateWithPrefix(RequestPrefix)
}
