// Package extract converts a free-text purchase message into structured
// requested items. Extractors are pure with respect to application state:
// they read nothing but the message and write nothing.
package extract

import (
	"context"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

// Extractor parses requested items out of a customer message. It may return
// zero items; the safety engine treats an empty list as a validation failure.
// The string slice carries reasoning lines for the stage trace record.
type Extractor interface {
	Extract(ctx context.Context, message string) ([]model.RequestedItem, []string, error)
}
