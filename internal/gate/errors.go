package gate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest reports an approval or override request that fails
	// validation.
	ErrInvalidRequest = errors.New("gate: invalid request")
	// ErrItemNotFound reports a re-evaluation naming an unknown item.
	ErrItemNotFound = errors.New("gate: item not found")
)

// InvalidBlockerError lists blocker ids an approval named that are not
// present on the gate.
type InvalidBlockerError struct {
	IDs []string
}

func (e *InvalidBlockerError) Error() string {
	return fmt.Sprintf("gate: unknown blocker ids: %s", strings.Join(e.IDs, ", "))
}
