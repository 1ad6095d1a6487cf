package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Session is the client-held identity state the policy reads.
type Session struct {
	// Identity is the signed-in admin's email.
	Identity string
	// Permissions is the JSON-encoded map of module key to level name.
	Permissions []byte
}

// SessionReader supplies the session for a call. ok is false when the call
// does not come from an interactive client.
type SessionReader interface {
	Session(ctx context.Context) (Session, bool)
}

type sessionKey struct{}

// WithSession attaches s to ctx for ContextSessions.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// ContextSessions reads the session attached by WithSession.
type ContextSessions struct{}

func (ContextSessions) Session(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// FileSessions reads a session from a JSON file on every call, so edits are
// observed by the next call without a restart.
type FileSessions struct {
	Path string
}

// sessionFile is the on-disk form used by FileSessions.
type sessionFile struct {
	Email       string          `json:"email"`
	Permissions json.RawMessage `json:"permissions"`
}

func (f FileSessions) Session(context.Context) (Session, bool) {
	s, err := f.Load()
	if err != nil {
		return Session{}, false
	}
	return s, true
}

// Load reads and decodes the session file.
func (f FileSessions) Load() (Session, error) {
	if f.Path == "" {
		return Session{}, errors.New("session file path is empty")
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", f.Path, err)
	}
	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return Session{}, fmt.Errorf("parse session %s: %w", f.Path, err)
	}
	perms := []byte(sf.Permissions)
	// Browsers keep the map as a JSON string; accept that form too.
	var encoded string
	if json.Unmarshal(sf.Permissions, &encoded) == nil {
		perms = []byte(encoded)
	}
	return Session{Identity: sf.Email, Permissions: perms}, nil
}

// Save writes s to the session file with owner-only permissions.
func (f FileSessions) Save(s Session) error {
	perms := json.RawMessage(s.Permissions)
	if len(perms) == 0 {
		perms = json.RawMessage(`{}`)
	}
	data, err := json.MarshalIndent(sessionFile{Email: s.Identity, Permissions: perms}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0o600); err != nil {
		return fmt.Errorf("write session %s: %w", f.Path, err)
	}
	return nil
}
