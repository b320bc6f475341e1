package system

import (
	stderrors "errors"

	"github.com/matzehuels/depot/pkg/errors"
)

// ResolutionError reports a resolution that collected errors or left
// artifacts unresolved. The partial results stay available.
type ResolutionError struct {
	// Result is set by [System.ResolveDependencies].
	Result *DependencyResult
	// Artifacts holds every artifact result, resolved or not.
	Artifacts []*ArtifactResult
	err       *errors.Error
}

func newResolutionError(msg string, artifacts []*ArtifactResult, errs []error) *ResolutionError {
	return &ResolutionError{
		Artifacts: artifacts,
		err:       errors.Wrap(errors.ErrCodeResolution, stderrors.Join(errs...), "%s", msg),
	}
}

func (e *ResolutionError) Error() string { return e.err.Error() }
func (e *ResolutionError) Unwrap() error { return e.err }

// Missing returns the results that could not be resolved.
func (e *ResolutionError) Missing() []*ArtifactResult {
	var out []*ArtifactResult
	for _, r := range e.Artifacts {
		if !r.IsResolved() {
			out = append(out, r)
		}
	}
	return out
}

// InstallError aggregates the failures of an install.
type InstallError struct {
	Result *InstallResult
	err    *errors.Error
}

func (e *InstallError) Error() string { return e.err.Error() }
func (e *InstallError) Unwrap() error { return e.err }

// DeploymentError aggregates the failures of a deploy.
type DeploymentError struct {
	Result *DeployResult
	err    *errors.Error
}

func (e *DeploymentError) Error() string { return e.err.Error() }
func (e *DeploymentError) Unwrap() error { return e.err }
