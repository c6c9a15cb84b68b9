package authz

import "errors"

// ErrNotAuthorized is the only denial callers ever see. The concrete
// reason stays in the daemon log so probes learn nothing about which
// check failed.
var ErrNotAuthorized = errors.New("not authorized")

// ErrIdentityUnavailable reports that connection credentials could not be
// read. It always results in a denial.
var ErrIdentityUnavailable = errors.New("caller identity unavailable")
