package idgen

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// TempIDPrefix marks identifiers for entities the server has not confirmed
// yet. Consuming code branches on the prefix to know a value is provisional.
const TempIDPrefix = "temp_"

// IsTempID reports whether id is a placeholder awaiting server confirmation.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// NewTempID mints a placeholder id for a locally created entity.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// KeyGenerator produces idempotency keys that are unique across restarts
// without server coordination: the session id is minted once per process and
// the counter is seeded from the store's high-water mark at startup. The key
// never changes across retries of the same item.
type KeyGenerator struct {
	userID    string
	sessionID string
	counter   atomic.Int64
}

// NewKeyGenerator seeds the counter with the store's current high-water mark.
func NewKeyGenerator(userID string, highWaterMark int64) *KeyGenerator {
	g := &KeyGenerator{
		userID:    userID,
		sessionID: uuid.New().String(),
	}
	g.counter.Store(highWaterMark)
	return g
}

// Next returns a fresh idempotency key.
func (g *KeyGenerator) Next() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("%s:%s:%d", g.userID, g.sessionID, n)
}
