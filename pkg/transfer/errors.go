package transfer

import (
	"github.com/matzehuels/depot/pkg/errors"
)

// Sentinels for errors.Is. Every transfer failure wraps exactly one of them.
var (
	ErrNotFound  = errors.Sentinel(errors.ErrCodeNotFound)
	ErrChecksum  = errors.Sentinel(errors.ErrCodeChecksum)
	ErrCancelled = errors.Sentinel(errors.ErrCodeCancelled)
	ErrTransfer  = errors.Sentinel(errors.ErrCodeTransfer)
)

// NotFoundError reports that the repository does not have the resource.
func NotFoundError(r Resource, cause error) error {
	return errors.Wrap(errors.ErrCodeNotFound, cause, "%s not found", r.URL())
}

// ChecksumError reports a checksum mismatch.
func ChecksumError(r Resource, want, got string) error {
	return errors.New(errors.ErrCodeChecksum, "%s: checksum mismatch (expected %s, actual %s)", r.URL(), want, got)
}

// CancelledError reports a transfer vetoed by a listener or by context
// cancellation.
func CancelledError(r Resource, cause error) error {
	return errors.Wrap(errors.ErrCodeCancelled, cause, "transfer of %s cancelled", r.URL())
}

// TransferError reports any other transfer failure.
func TransferError(r Resource, cause error) error {
	return errors.Wrap(errors.ErrCodeTransfer, cause, "transfer of %s failed", r.URL())
}
