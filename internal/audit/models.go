// Package audit maintains the hash-chained, append-only log of every
// state-changing action. Each entry links to its predecessor's hash, so any
// retroactive edit of recorded history breaks verification from that entry on.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	id "expenseflow/pkg/domain"
)

// GenesisHash is the fixed previous-hash sentinel for the first entry.
const GenesisHash = "GENESIS"

// Entry is one append-only record in the tamper-evident chain. Never mutated
// after creation.
type Entry struct {
	ID            id.EntryID
	Seq           int64 // total order of appends; assigned by the store
	ActorID       string
	EntityType    string
	EntityID      string
	EventType     string
	EventDataJSON string
	PrevHash      string
	Hash          string
	CreatedAt     time.Time
}

// Verification is the result of walking the whole chain.
type Verification struct {
	Valid bool `json:"valid"`
	// FailedAt identifies the first entry whose recomputed hash mismatches.
	FailedAt *id.EntryID `json:"failedAtEntryId,omitempty"`
	Count    int         `json:"count"`
}

// ComputeHash derives an entry's hash from its stored fields. The timestamp
// is serialized as UTC RFC 3339; callers must truncate it to microseconds
// before recording so the serialization survives a round trip through the
// backing store.
func ComputeHash(prevHash, eventDataJSON, actorID, entityType, entityID string, createdAt time.Time) string {
	source := prevHash + eventDataJSON + actorID + entityType + entityID + createdAt.UTC().Format(time.RFC3339Nano)
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
