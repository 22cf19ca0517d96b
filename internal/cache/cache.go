package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/islamcheck/internal/model"
)

// Cache holds claim records in front of the persistent store
type Cache interface {
	Get(key string) (*model.ClaimRecord, bool)
	Set(key string, record *model.ClaimRecord, ttl time.Duration)
	Delete(key string)
	Clear()
}

// IDKey is the cache key for a record looked up by claim id
func IDKey(id string) string {
	return "islamcheck:v1:id:" + id
}

// QueryKey is the cache key for a record looked up by claim text
func QueryKey(query string) string {
	hash := sha256.Sum256([]byte(query))
	return "islamcheck:v1:q:" + hex.EncodeToString(hash[:])
}
