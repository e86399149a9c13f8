// Package classifier wraps the pre-trained request classifier. A Classifier
// is loaded once per process and shared read-only by every caller.
package classifier

import (
	"context"
	"errors"

	"github.com/af-corp/aegis-ids/internal/types"
)

// ErrUnknownClass is returned when the model predicts a class id that has no label.
var ErrUnknownClass = errors.New("unknown class id")

// Classifier maps canonical request text to a verdict.
type Classifier interface {
	Classify(ctx context.Context, text string) (types.Label, error)
}

// Func adapts a function to the Classifier interface.
type Func func(ctx context.Context, text string) (types.Label, error)

func (f Func) Classify(ctx context.Context, text string) (types.Label, error) {
	return f(ctx, text)
}

// Probe runs one classification to verify the classifier is usable at startup.
func Probe(ctx context.Context, c Classifier) error {
	_, err := c.Classify(ctx, "GET /")
	return err
}
