// Package checkpoint persists finished variability reports keyed by log
// content, so unchanged logs are not re-analyzed on the next run.
package checkpoint

import (
	"context"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/logflow/logvar/pkg/variability"
)

// Key identifies one analysis: the log name, the digest of its content and
// a fingerprint of the settings that influence the report.
type Key struct {
	Name     string
	Digest   string
	Settings string
}

// String renders the key as "<name>:<digest>:<settings-hash>".
func (k Key) String() string {
	return k.Name + ":" + k.Digest + ":" + Fingerprint(k.Settings)
}

// Fingerprint hashes a settings description to a short stable token.
func Fingerprint(parts ...string) string {
	sum := xxhash.Sum64String(strings.Join(parts, "\x00"))
	const hex = "0123456789abcdef"
	var b [16]byte
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = hex[sum&0xf]
		sum >>= 4
	}
	return string(b[:])
}

// Entry is a stored report.
type Entry struct {
	Key     string             `json:"key"`
	RunID   string             `json:"run_id"`
	Report  variability.Report `json:"report"`
	SavedAt time.Time          `json:"saved_at"`
}

// Store defines the interface for checkpoint storage backends.
type Store interface {
	// Load returns the entry stored under key. ok is false on a miss.
	Load(ctx context.Context, key Key) (entry *Entry, ok bool, err error)

	// Save stores an entry under key, replacing any previous one.
	Save(ctx context.Context, key Key, entry *Entry) error

	// Delete removes the entry under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// Name returns the backend name for logging.
	Name() string

	Close() error
}

// Nop is a store that never hits.
type Nop struct{}

func (Nop) Load(context.Context, Key) (*Entry, bool, error) { return nil, false, nil }
func (Nop) Save(context.Context, Key, *Entry) error          { return nil }
func (Nop) Delete(context.Context, Key) error                { return nil }
func (Nop) Name() string                                     { return "none" }
func (Nop) Close() error                                     { return nil }
