package smarthttp

import "errors"

// ErrBadService is returned when /info/refs is requested for anything
// other than the git-upload-pack service.
var ErrBadService = errors.New("smarthttp: only git-upload-pack is supported")
