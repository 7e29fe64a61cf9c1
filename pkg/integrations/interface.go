package integrations

import (
	"context"

	"github.com/kerbaras/comicdl/pkg/data"
)

// Job is one chapter's ordered page files ready to be packed.
type Job struct {
	Chapter  *data.Chapter
	Pages    []string
	Producer string
	Metadata bool // stamp document-level metadata where the format has it
}

// Writer packs a Job into a single container at dst. dst is a temporary
// name; the caller renames it once the write is verified.
type Writer interface {
	Write(ctx context.Context, job Job, dst string) error
}

// Verifier is implemented by writers that can check a finished container.
type Verifier interface {
	Verify(job Job, dst string) error
}

// Sidecar renders a metadata file stored at the container root.
type Sidecar interface {
	Name() string
	Render(job Job) ([]byte, error)
}
