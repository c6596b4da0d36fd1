// Package credentials manages the shared pool of test accounts. Each test
// spec checks out one account for its run so parallel workers never share
// a login.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrPoolExhausted means every credential is checked out.
	ErrPoolExhausted = errors.New("credential pool exhausted")

	// ErrAlreadyCheckedOut means the spec already holds a credential.
	ErrAlreadyCheckedOut = errors.New("spec already holds a credential")

	// ErrNotCheckedOut means the spec holds no credential.
	ErrNotCheckedOut = errors.New("spec holds no credential")

	// ErrUnknownUser means no credential has the given username.
	ErrUnknownUser = errors.New("unknown username")

	errWouldBlock = errors.New("lock held by another process")
)

// Credential is one test account in the pool file.
type Credential struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	Token         string `json:"token"`
	InUse         bool   `json:"inUse"`
	Spec          string `json:"spec"`
	IsPresetToken bool   `json:"isPresetToken"`
}

// Store hands out credentials to specs.
type Store interface {
	Checkout(ctx context.Context, spec string) (Credential, error)
	Checkin(ctx context.Context, spec string) error
	List(ctx context.Context) ([]Credential, error)
	SetToken(ctx context.Context, username, token string) error
	Reset(ctx context.Context) error
}

var _ Store = (*FileStore)(nil)

// lockPoll is how often a blocked FileStore retries the OS lock.
const lockPoll = 10 * time.Millisecond

// FileStore keeps the pool in a JSON file. Every read-modify-write holds
// an in-process mutex and an OS advisory lock on "<path>.lock", so stores
// in different processes (or several in one) never hand out the same
// credential.
type FileStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithLogger sets a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// NewFileStore returns a store backed by path. The file need not exist yet.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the pool file.
func (s *FileStore) Path() string {
	return s.path
}

// Checkout marks the first free credential as held by spec.
func (s *FileStore) Checkout(ctx context.Context, spec string) (Credential, error) {
	if spec == "" {
		return Credential{}, errors.New("checkout: empty spec name")
	}
	var out Credential
	err := s.update(ctx, func(creds []Credential) ([]Credential, error) {
		for _, c := range creds {
			if c.InUse && c.Spec == spec {
				return nil, fmt.Errorf("checkout %q: %w (%s)", spec, ErrAlreadyCheckedOut, c.Username)
			}
		}
		for i := range creds {
			if creds[i].InUse {
				continue
			}
			creds[i].InUse = true
			creds[i].Spec = spec
			out = creds[i]
			return creds, nil
		}
		return nil, fmt.Errorf("checkout %q: %w (%d in use)", spec, ErrPoolExhausted, len(creds))
	})
	if err != nil {
		return Credential{}, err
	}
	s.logger.Debug("credential checked out", zap.String("spec", spec), zap.String("username", out.Username))
	return out, nil
}

// Checkin frees the credential held by spec.
func (s *FileStore) Checkin(ctx context.Context, spec string) error {
	var username string
	err := s.update(ctx, func(creds []Credential) ([]Credential, error) {
		for i := range creds {
			if creds[i].InUse && creds[i].Spec == spec {
				creds[i].InUse = false
				creds[i].Spec = ""
				username = creds[i].Username
				return creds, nil
			}
		}
		return nil, fmt.Errorf("checkin %q: %w", spec, ErrNotCheckedOut)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("credential checked in", zap.String("spec", spec), zap.String("username", username))
	return nil
}

// List returns every credential. A missing file is an empty pool.
func (s *FileStore) List(ctx context.Context) ([]Credential, error) {
	var out []Credential
	err := s.locked(ctx, func() error {
		creds, err := s.read()
		out = creds
		return err
	})
	return out, err
}

// SetToken stores an API token for username, replacing any preset one.
func (s *FileStore) SetToken(ctx context.Context, username, token string) error {
	return s.update(ctx, func(creds []Credential) ([]Credential, error) {
		for i := range creds {
			if creds[i].Username == username {
				creds[i].Token = token
				creds[i].IsPresetToken = false
				return creds, nil
			}
		}
		return nil, fmt.Errorf("set token for %q: %w", username, ErrUnknownUser)
	})
}

// Reset frees every credential.
func (s *FileStore) Reset(ctx context.Context) error {
	return s.update(ctx, func(creds []Credential) ([]Credential, error) {
		for i := range creds {
			creds[i].InUse = false
			creds[i].Spec = ""
		}
		return creds, nil
	})
}

// Seed replaces the pool with creds, all free.
func (s *FileStore) Seed(ctx context.Context, creds []Credential) error {
	seen := make(map[string]bool, len(creds))
	fresh := make([]Credential, len(creds))
	for i, c := range creds {
		if c.Username == "" {
			return fmt.Errorf("seed: credential %d has no username", i)
		}
		if seen[c.Username] {
			return fmt.Errorf("seed: duplicate username %q", c.Username)
		}
		seen[c.Username] = true
		c.InUse = false
		c.Spec = ""
		fresh[i] = c
	}
	return s.locked(ctx, func() error {
		return s.write(fresh)
	})
}

// Remove deletes the pool file. Removing a missing pool is not an error.
func (s *FileStore) Remove(ctx context.Context) error {
	return s.locked(ctx, func() error {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing credential pool: %w", err)
		}
		return nil
	})
}

// update runs fn over the pool under the lock and writes its result back.
// When fn fails nothing is written.
func (s *FileStore) update(ctx context.Context, fn func([]Credential) ([]Credential, error)) error {
	return s.locked(ctx, func() error {
		creds, err := s.read()
		if err != nil {
			return err
		}
		creds, err = fn(creds)
		if err != nil {
			return err
		}
		return s.write(creds)
	})
}

func (s *FileStore) locked(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(f); err != nil {
			s.logger.Warn("releasing credential lock", zap.Error(err))
		}
	}()
	return fn()
}

// lock retries the non-blocking OS lock until it is free or ctx ends.
func (s *FileStore) lock(ctx context.Context) (*os.File, error) {
	lockPath := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating credential directory: %w", err)
	}
	ticker := time.NewTicker(lockPoll)
	defer ticker.Stop()
	for {
		f, err := tryLock(lockPath)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, errWouldBlock) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for credential lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *FileStore) read() ([]Credential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Credential{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential pool: %w", err)
	}
	var creds []Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credential pool %s: %w", s.path, err)
	}
	if creds == nil {
		creds = []Credential{}
	}
	return creds, nil
}

// write replaces the pool file atomically.
func (s *FileStore) write(creds []Credential) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credential pool: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credential pool: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing credential pool: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing credential pool: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing credential pool: %w", err)
	}
	return nil
}

// Acquire checks out a credential for spec, retrying every poll while the
// pool is exhausted. It gives up when ctx ends.
func Acquire(ctx context.Context, store Store, spec string, poll time.Duration) (Credential, error) {
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		c, err := store.Checkout(ctx, spec)
		if !errors.Is(err, ErrPoolExhausted) {
			return c, err
		}
		select {
		case <-ctx.Done():
			return Credential{}, fmt.Errorf("acquiring credential for %q: %w", spec, errors.Join(ctx.Err(), err))
		case <-ticker.C:
		}
	}
}
