package persistmap

import "errors"

// Sentinel errors for backend operations. Backends wrap these with medium
// detail so callers can classify failures with errors.Is.
var (
	ErrLoadFailed   = errors.New("load failed")
	ErrSaveFailed   = errors.New("save failed")
	ErrDeleteFailed = errors.New("delete failed")
	ErrBadRecord    = errors.New("bad record")
)
