package variant

import (
	"errors"
	"fmt"
)

// ErrNoRuntime indicates an accessor needed the external runtime but the
// variant was constructed without one.
var ErrNoRuntime = errors.New("variant: no runtime bound")

// CoercionError reports that the current value cannot be represented under
// the requested discriminant (overflow, non-numeric string content, or a
// conversion the runtime does not define).
type CoercionError struct {
	From   Type
	To     Type
	Reason string
}

func (e *CoercionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("variant: cannot coerce %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("variant: cannot coerce %s to %s: %s", e.From, e.To, e.Reason)
}

// InvalidDiscriminantError reports a raw discriminant word that does not
// match any known type code. It surfaces when reading back a block written
// by an unexpected source.
type InvalidDiscriminantError struct {
	Code uint64
}

func (e *InvalidDiscriminantError) Error() string {
	return fmt.Sprintf("variant: invalid discriminant %d", e.Code)
}
