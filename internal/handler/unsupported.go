package handler

import (
	"context"
	"strings"

	"github.com/sells-group/verify-cli/internal/model"
)

// Unsupported answers PENDING for types with no configured source.
type Unsupported struct {
	Type string
}

// Remote implements Handler.
func (Unsupported) Remote() bool { return false }

// Verify implements Handler.
func (u Unsupported) Verify(context.Context, model.VerificationQuery) model.Verdict {
	return model.Verdict{
		Status:     model.StatusPending,
		DataSource: strings.ToUpper(u.Type) + " API",
		Details: map[string]any{
			"message": u.Type + " verification not yet implemented",
		},
	}
}
