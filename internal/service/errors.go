package service

import "errors"

// ErrValidation marks failures that are the input's fault rather than the
// infrastructure's: malformed headers, missing files, unknown jobs. The
// worker fails these jobs immediately instead of consuming retries.
var ErrValidation = errors.New("validation error")
