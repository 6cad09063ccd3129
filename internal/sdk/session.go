package sdk

import (
	"time"

	"github.com/google/uuid"
)

const sessionStorageKey = "churnopp.sessionId"

// Storage persists the visitor id across page loads. A browser embedding
// maps this onto localStorage; other hosts provide whatever key/value
// store they have. A MemoryStorage is enough for single-run sessions.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// MemoryStorage is an in-process Storage with no persistence.
type MemoryStorage map[string]string

func (m MemoryStorage) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m MemoryStorage) Set(key, value string) {
	m[key] = value
}

// Session holds the detection state for one browser visitor. It is owned by
// a single Detector; all mutation happens under the detector's lock.
type Session struct {
	ID              string
	StartTime       time.Time
	Active          bool
	LastInteraction time.Time
	ScrollDepthMax  int
	IdentifiedEmail string
	Device          DeviceInfo

	// clicks is the sliding window used for rage-click detection. Entries
	// older than the configured window are pruned on every click.
	clicks []time.Time
}

// NewSession starts a session, reusing the visitor id already present in
// storage so repeat page loads keep the same identity.
func NewSession(storage Storage, device DeviceInfo, now time.Time) *Session {
	id, ok := storage.Get(sessionStorageKey)
	if !ok || id == "" {
		id = "session-" + uuid.NewString()
		storage.Set(sessionStorageKey, id)
	}
	return &Session{
		ID:              id,
		StartTime:       now,
		Active:          true,
		LastInteraction: now,
		Device:          device,
	}
}
