package dispatch

import (
	"fmt"
	"time"

	"github.com/xela07ax/reqflow/internal/domain"
)

// TransientError — временный отказ хранилища ленты с подсказкой,
// когда имеет смысл повторить (например, из Retry-After)
type TransientError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("dispatch throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *TransientError) Unwrap() error {
	return domain.ErrDispatchFailed
}
