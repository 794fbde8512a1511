package lookup

import (
	"fmt"

	"github.com/l0p7/emailrep/internal/entity"
)

// BatchError reports the first fatal outcome of a fail-fast batch. No result
// entries accompany it.
type BatchError struct {
	Identifier entity.Identifier
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("lookup: batch aborted at %s: %v", e.Identifier.Value, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
