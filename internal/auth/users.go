package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/packsmith/packsmith/internal/logging"
)

var (
	// ErrInvalidCredentials is the uniform authentication failure. It
	// never reveals whether the username exists.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUserExists      = errors.New("username already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrWeakPassword    = errors.New("password is too weak")
	ErrCredentialLimit = errors.New("credential limit reached")
	ErrLabelTaken      = errors.New("credential label already in use")
)

const (
	// MaxCredentials caps API credentials per user.
	MaxCredentials = 10

	// MinPasswordLength is the hard lower bound before strength scoring.
	MinPasswordLength = 8

	usersFile = "users.json"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Credential is a labeled, revocable API secret. Only the bcrypt hash is
// stored.
type Credential struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"createdAt"`
}

// CredentialInfo is the secret-free view returned to clients.
type CredentialInfo struct {
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is a stored account.
type User struct {
	Username     string       `json:"username"`
	PasswordHash string       `json:"passwordHash"`
	Role         Role         `json:"role"`
	Credentials  []Credential `json:"credentials,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// UserInfo is the hash-free view returned to clients.
type UserInfo struct {
	Username    string    `json:"username"`
	Role        Role      `json:"role"`
	Credentials int       `json:"credentials"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Users is the credential store: a JSON document on disk mirrored by an
// in-memory map under a reader/writer lock.
type Users struct {
	path     string
	scorer   StrengthScorer
	minScore int
	log      *logging.Logger

	mu    sync.RWMutex
	users map[string]*User // keyed by lowercased username
}

// OpenUsers loads (or initializes) the user store persisted at
// dir/users.json. A nil scorer disables the strength gate.
func OpenUsers(dir string, scorer StrengthScorer, minScore int, log *logging.Logger) (*Users, error) {
	if scorer == nil {
		scorer = NopScorer{}
	}
	u := &Users{
		path:     filepath.Join(dir, usersFile),
		scorer:   scorer,
		minScore: minScore,
		log:      log,
		users:    make(map[string]*User),
	}

	data, err := os.ReadFile(u.path)
	if errors.Is(err, os.ErrNotExist) {
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user store: %w", err)
	}

	var stored []*User
	if err := sonic.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse user store: %w", err)
	}
	for _, user := range stored {
		u.users[strings.ToLower(user.Username)] = user
	}

	log.Info("user store loaded", zap.Int("users", len(stored)))
	return u, nil
}

// Count returns the number of accounts. The zero-user fail-closed rule is
// evaluated against it.
func (u *Users) Count() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.users)
}

// Create adds an account after validating username charset and password
// policy.
func (u *Users) Create(username, password string, role Role) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username may only contain alphanumerics, hyphens and underscores")
	}
	if err := u.checkPassword(password); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	key := strings.ToLower(username)
	if _, exists := u.users[key]; exists {
		return ErrUserExists
	}

	u.users[key] = &User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now(),
	}
	return u.persist()
}

// SetPassword replaces the account password.
func (u *Users) SetPassword(username, password string) error {
	if err := u.checkPassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.users[strings.ToLower(username)]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = string(hash)
	return u.persist()
}

// SetRole changes the account role.
func (u *Users) SetRole(username string, role Role) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.users[strings.ToLower(username)]
	if !ok {
		return ErrUserNotFound
	}
	user.Role = role
	return u.persist()
}

// Delete removes an account.
func (u *Users) Delete(username string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := strings.ToLower(username)
	if _, ok := u.users[key]; !ok {
		return ErrUserNotFound
	}
	delete(u.users, key)
	return u.persist()
}

// List returns hash-free account views ordered by username.
func (u *Users) List() []UserInfo {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := make([]UserInfo, 0, len(u.users))
	for _, user := range u.users {
		out = append(out, UserInfo{
			Username:    user.Username,
			Role:        user.Role,
			Credentials: len(user.Credentials),
			CreatedAt:   user.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out
}

// Lookup returns the hash-free view of one account.
func (u *Users) Lookup(username string) (UserInfo, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.users[strings.ToLower(username)]
	if !ok {
		return UserInfo{}, false
	}
	return UserInfo{
		Username:    user.Username,
		Role:        user.Role,
		Credentials: len(user.Credentials),
		CreatedAt:   user.CreatedAt,
	}, true
}

// Authenticate verifies the account password or any one current API
// credential against its stored hash. Every failure returns the same
// error.
func (u *Users) Authenticate(username, secret string) (UserInfo, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.users[strings.ToLower(username)]
	if !ok {
		return UserInfo{}, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)) == nil {
		return UserInfo{Username: user.Username, Role: user.Role, Credentials: len(user.Credentials), CreatedAt: user.CreatedAt}, nil
	}
	for _, cred := range user.Credentials {
		if bcrypt.CompareHashAndPassword([]byte(cred.Hash), []byte(secret)) == nil {
			return UserInfo{Username: user.Username, Role: user.Role, Credentials: len(user.Credentials), CreatedAt: user.CreatedAt}, nil
		}
	}
	return UserInfo{}, ErrInvalidCredentials
}

// CreateCredential mints a new API credential for username. The plaintext
// secret is returned exactly once; only its hash is stored.
func (u *Users) CreateCredential(username, label string) (string, CredentialInfo, error) {
	if label == "" {
		return "", CredentialInfo{}, fmt.Errorf("credential label is required")
	}

	secret := newSecret()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", CredentialInfo{}, fmt.Errorf("failed to hash credential: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.users[strings.ToLower(username)]
	if !ok {
		return "", CredentialInfo{}, ErrUserNotFound
	}
	if len(user.Credentials) >= MaxCredentials {
		return "", CredentialInfo{}, ErrCredentialLimit
	}
	for _, cred := range user.Credentials {
		if cred.Label == label {
			return "", CredentialInfo{}, ErrLabelTaken
		}
	}

	cred := Credential{
		ID:        uuid.NewString(),
		Label:     label,
		Hash:      string(hash),
		CreatedAt: time.Now(),
	}
	user.Credentials = append(user.Credentials, cred)
	if err := u.persist(); err != nil {
		user.Credentials = user.Credentials[:len(user.Credentials)-1]
		return "", CredentialInfo{}, err
	}
	return secret, CredentialInfo{Label: cred.Label, CreatedAt: cred.CreatedAt}, nil
}

// Credentials lists the secret-free credential views for username.
func (u *Users) Credentials(username string) ([]CredentialInfo, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.users[strings.ToLower(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := make([]CredentialInfo, len(user.Credentials))
	for i, cred := range user.Credentials {
		out[i] = CredentialInfo{Label: cred.Label, CreatedAt: cred.CreatedAt}
	}
	return out, nil
}

// DeleteCredential revokes the credential with the given label.
func (u *Users) DeleteCredential(username, label string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.users[strings.ToLower(username)]
	if !ok {
		return ErrUserNotFound
	}
	for i, cred := range user.Credentials {
		if cred.Label == label {
			user.Credentials = append(user.Credentials[:i], user.Credentials[i+1:]...)
			return u.persist()
		}
	}
	return fmt.Errorf("credential %q not found", label)
}

func (u *Users) checkPassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: minimum length is %d", ErrWeakPassword, MinPasswordLength)
	}
	if score := u.scorer.Score(password); score < u.minScore {
		return fmt.Errorf("%w: strength score %d below minimum %d", ErrWeakPassword, score, u.minScore)
	}
	return nil
}

// persist writes the store document via temp-then-rename. Caller holds the
// write lock.
func (u *Users) persist() error {
	stored := make([]*User, 0, len(u.users))
	for _, user := range u.users {
		stored = append(stored, user)
	}
	sort.Slice(stored, func(i, j int) bool {
		return strings.ToLower(stored[i].Username) < strings.ToLower(stored[j].Username)
	})

	data, err := sonic.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode user store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(u.path), ".users-*")
	if err != nil {
		return fmt.Errorf("failed to write user store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write user store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write user store: %w", err)
	}
	return os.Rename(tmp.Name(), u.path)
}

func newSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// Never fall back to weak randomness for secrets.
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return base64.URLEncoding.EncodeToString(b)
}
