package connector

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/matzehuels/depot/pkg/repository"
)

// ChecksumVerifier supplies the digest used to verify downloads and the
// expected value published by the repository.
type ChecksumVerifier interface {
	// Extension is appended to a resource name to find its checksum file.
	Extension() string
	New() hash.Hash
	// Expected reads the published checksum for name. It returns an error
	// wrapping [ErrResourceMissing] when none is published.
	Expected(ctx context.Context, b Backend, name string) (string, error)
}

// SHA1 verifies against ".sha1" sidecar files, the format written by
// [Parallel.Put].
type SHA1 struct{}

func (SHA1) Extension() string { return repository.ChecksumExtension }

func (SHA1) New() hash.Hash { return sha1.New() }

// maxChecksumSize bounds how much of a sidecar file is read.
const maxChecksumSize = 1 << 10

func (s SHA1) Expected(ctx context.Context, b Backend, name string) (string, error) {
	rc, _, err := b.Open(ctx, name+s.Extension())
	if err != nil {
		return "", err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(rc, maxChecksumSize)); err != nil {
		return "", fmt.Errorf("read checksum: %w", err)
	}
	return parseChecksum(buf.String())
}

// parseChecksum accepts the bare digest and the "digest  filename" form
// written by sha1sum.
func parseChecksum(s string) (string, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum file")
	}
	sum := strings.ToLower(fields[0])
	if _, err := hex.DecodeString(sum); err != nil {
		return "", fmt.Errorf("malformed checksum %q", fields[0])
	}
	return sum, nil
}
