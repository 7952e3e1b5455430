package source

import "errors"

// ErrMalformed reports an input file that cannot be screened as is.
var ErrMalformed = errors.New("malformed item file")
