package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/matzehuels/depot/pkg/artifact"
)

// Keyer builds cache keys for the values depot caches.
type Keyer interface {
	// DescriptorKey addresses a parsed descriptor of a.
	DescriptorKey(a artifact.Artifact) string
	// VersionsKey addresses the version listing of groupID:artifactID as
	// seen through the given repositories.
	VersionsKey(groupID, artifactID string, repoIDs []string) string
}

// DefaultKeyer produces unprefixed keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

func (DefaultKeyer) DescriptorKey(a artifact.Artifact) string {
	return "descriptor:" + a.String()
}

func (DefaultKeyer) VersionsKey(groupID, artifactID string, repoIDs []string) string {
	ids := slices.Clone(repoIDs)
	slices.Sort(ids)
	return hashKey("versions:"+groupID+":"+artifactID, ids)
}

// ScopedKeyer prepends a fixed prefix to every key of an inner keyer.
//
//	shared := NewScopedKeyer(NewDefaultKeyer(), "ci:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer wraps inner, or the default keyer when inner is nil.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

func (k *ScopedKeyer) DescriptorKey(a artifact.Artifact) string {
	return k.prefix + k.inner.DescriptorKey(a)
}

func (k *ScopedKeyer) VersionsKey(groupID, artifactID string, repoIDs []string) string {
	return k.prefix + k.inner.VersionsKey(groupID, artifactID, repoIDs)
}

// hashKey formats prefix:sha256(parts).
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(sum[:]))
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
