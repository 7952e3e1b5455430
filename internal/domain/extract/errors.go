package extract

import "errors"

// Extraction failures. Callers distinguish them with errors.Is.
var (
	ErrEmptyOutput   = errors.New("empty model output")
	ErrNoJSON        = errors.New("no JSON object found in output")
	ErrMalformedJSON = errors.New("malformed JSON object in output")
)
