package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skippednote/granola-skill/pkg/logging"
	"github.com/skippednote/granola-skill/pkg/oauth"
)

// Store persists the credential record in a line-oriented KEY=value file,
// preserving every entry it does not own.
//
// SECURITY: The file holds bearer credentials. It is written with 0600
// permissions (owner read/write only) and its directory is created with
// 0700. Token values are never logged.
//
// The store assumes no concurrent invocations race on the same file; it
// performs a read-then-write per save without locking.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the credential record from the backing file. A missing file is
// not an error: it yields the zero Record.
func (s *Store) Load() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("failed to read credential file: %w", err)
	}

	return fromMap(ParseEnv(data)), nil
}

// Save persists a token set along with its registration metadata. The
// absolute expiry is computed from the token's expires_in (with the protocol
// default applied when absent), the backing file is re-read so unrelated
// entries written since the last load survive, and the merged set is written
// back whole-file.
func (s *Store) Save(token *oauth.Token, clientID, tokenEndpoint string) error {
	record := Record{
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		ExpiresAt:     expiresAtEpoch(token),
		ClientID:      clientID,
		TokenEndpoint: tokenEndpoint,
	}

	// Fresh re-read: merge over whatever is on disk right now, not over a
	// copy loaded earlier in the run.
	existing := map[string]string{}
	if data, err := os.ReadFile(s.path); err == nil {
		existing = ParseEnv(data)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to re-read credential file: %w", err)
	}

	merged := Merge(existing, record)

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	if err := os.WriteFile(s.path, FormatEnv(merged), 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}

	logging.Info("CredentialStore", "Stored credentials in %s (client_id=%s, expires_at=%s)",
		s.path, clientID, time.Unix(record.ExpiresAt, 0).Format(time.RFC3339))

	return nil
}

// expiresAtEpoch converts the token's expiry to epoch seconds, applying the
// default lifetime when the server sent none.
func expiresAtEpoch(token *oauth.Token) int64 {
	if !token.ExpiresAt.IsZero() {
		return token.ExpiresAt.Unix()
	}
	lifetime := token.ExpiresIn
	if lifetime <= 0 {
		lifetime = oauth.DefaultExpiresIn
	}
	return time.Now().Add(time.Duration(lifetime) * time.Second).Unix()
}
