package engine

import "errors"

// ErrEmpty marks collector results that found nothing to collect: captions
// disabled, comments turned off. Callers treat it as a successful empty
// outcome rather than a stage failure.
var ErrEmpty = errors.New("nothing to collect")
