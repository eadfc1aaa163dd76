package lease

import "errors"

var ErrNotHeld = errors.New("lease not held")
