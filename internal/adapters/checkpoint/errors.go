package checkpoint

import "errors"

// ErrMalformed reports a checkpoint that cannot be used to resume:
// missing id column, blank or duplicate ids, or unreadable rows.
var ErrMalformed = errors.New("malformed checkpoint")
