package viewcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// DefaultKeyPrefix namespaces all cache keys written by this package.
const DefaultKeyPrefix = "vc"

// KeyMaker builds the cache keys used by the serialized-object cache.
type KeyMaker struct {
	prefix string
}

// NewKeyMaker returns a KeyMaker with the supplied prefix, falling back to
// DefaultKeyPrefix when blank.
func NewKeyMaker(prefix string) KeyMaker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return KeyMaker{prefix: prefix}
}

// Instance returns the key holding the serialized payload of a single record.
func (k KeyMaker) Instance(model, pk string) string {
	return k.prefix + ":" + model + ":" + pk
}

// Version returns the key holding the invalidation version counter of a model.
func (k KeyMaker) Version(model string) string {
	return k.prefix + ":ver:" + model
}

// Query returns the key holding a cached primary-key list. The model version
// is part of the key, so bumping the version orphans every previous entry.
func (k KeyMaker) Query(model string, version int64, signature string) string {
	return k.prefix + ":q:" + model + ":" + strconv.FormatInt(version, 10) + ":" + signature
}

// Signature hashes the normalized description of a query into a fixed-size
// hex string usable inside a cache key.
func Signature(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
