package credentials

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// OwnedKeyPrefix marks the credential-file keys this store owns. Keys with
// this prefix are fully replaced on every save; everything else in the file
// is preserved verbatim.
const OwnedKeyPrefix = "GRANOLA_"

// Credential file keys owned by this store.
const (
	KeyAccessToken    = "GRANOLA_ACCESS_TOKEN"
	KeyRefreshToken   = "GRANOLA_REFRESH_TOKEN"
	KeyTokenExpiresAt = "GRANOLA_TOKEN_EXPIRES_AT"
	KeyClientID       = "GRANOLA_CLIENT_ID"
	KeyTokenEndpoint  = "GRANOLA_TOKEN_ENDPOINT"
)

// Record is the persisted credential set. ExpiresAt is absolute epoch
// seconds; the zero Record means "no credentials stored".
type Record struct {
	AccessToken   string
	RefreshToken  string
	ExpiresAt     int64
	ClientID      string
	TokenEndpoint string
}

// IsZero reports whether the record holds no credentials at all.
func (r Record) IsZero() bool {
	return r == Record{}
}

// HasRefreshMaterial reports whether the record carries everything the
// refresh grant needs. When false, a full authorization flow is required.
func (r Record) HasRefreshMaterial() bool {
	return r.RefreshToken != "" && r.ClientID != "" && r.TokenEndpoint != ""
}

// ExpiresIn returns the remaining validity window of the access token.
// Negative when already expired.
func (r Record) ExpiresIn(now time.Time) time.Duration {
	return time.Unix(r.ExpiresAt, 0).Sub(now)
}

// fromMap builds a Record from parsed credential-file entries.
func fromMap(entries map[string]string) Record {
	expiresAt, _ := strconv.ParseInt(entries[KeyTokenExpiresAt], 10, 64)
	return Record{
		AccessToken:   entries[KeyAccessToken],
		RefreshToken:  entries[KeyRefreshToken],
		ExpiresAt:     expiresAt,
		ClientID:      entries[KeyClientID],
		TokenEndpoint: entries[KeyTokenEndpoint],
	}
}

// toMap returns the owned key set for the record. All five keys are always
// present so a save replaces them together, never partially.
func (r Record) toMap() map[string]string {
	return map[string]string{
		KeyAccessToken:    r.AccessToken,
		KeyRefreshToken:   r.RefreshToken,
		KeyTokenExpiresAt: strconv.FormatInt(r.ExpiresAt, 10),
		KeyClientID:       r.ClientID,
		KeyTokenEndpoint:  r.TokenEndpoint,
	}
}

// Merge overlays a record onto existing credential-file entries: every key
// with the owned prefix is dropped and rewritten from the record, all other
// entries are preserved as-is. Pure function; neither input is mutated.
func Merge(existing map[string]string, record Record) map[string]string {
	merged := make(map[string]string, len(existing)+5)
	for key, value := range existing {
		if strings.HasPrefix(key, OwnedKeyPrefix) {
			continue
		}
		merged[key] = value
	}
	for key, value := range record.toMap() {
		merged[key] = value
	}
	return merged
}

// ParseEnv parses line-oriented KEY=value content. Blank lines, comment
// lines, and lines without a separator are skipped. Values keep everything
// after the first '='.
func ParseEnv(data []byte) map[string]string {
	entries := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found || key == "" {
			continue
		}
		entries[key] = value
	}
	return entries
}

// FormatEnv serializes entries as KEY=value lines in sorted key order with a
// trailing newline. Deterministic output keeps file diffs readable.
func FormatEnv(entries map[string]string) []byte {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(entries[key])
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
