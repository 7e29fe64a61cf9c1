package sources

import (
	"context"

	"github.com/kerbaras/comicdl/pkg/data"
)

// Source resolves a chapter into ordered, authorized image locators.
type Source interface {
	Resolve(ctx context.Context, chapter *data.Chapter) ([]data.Locator, error)
}
