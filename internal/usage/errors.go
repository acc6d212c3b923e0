package usage

import "errors"

// ErrLimitReached indicates the user exhausted the uploads of the current window.
var ErrLimitReached = errors.New("limit reached")
