package collect

import (
	"fmt"

	"github.com/matzehuels/depot/pkg/artifact"
)

// DescriptorError reports a descriptor that could not be read. The edge that
// requested it stays in the graph without children.
type DescriptorError struct {
	Artifact artifact.Artifact
	Err      error
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("read descriptor of %s: %v", e.Artifact, e.Err)
}

func (e *DescriptorError) Unwrap() error { return e.Err }
