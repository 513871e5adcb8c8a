package loader

import "errors"

// ErrMalformedInput is returned when metadata.json or jobs.json cannot be
// parsed at all (spec §7's MalformedInput kind — the one input error class
// that is fatal rather than tolerated). It may be wrapped and must be
// tested for with errors.Is, the same contract the teacher's own sentinel
// errors (ErrNXDomain, ErrCircular) carried.
var ErrMalformedInput = errors.New("malformed input")
