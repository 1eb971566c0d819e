package dupes

import "errors"

var (
	// ErrScanFailed wraps a backend scan rejection.
	ErrScanFailed = errors.New("duplicate scan failed")

	// ErrNoSelection is returned when deleting with an empty selection.
	ErrNoSelection = errors.New("no files selected")

	// ErrUnknownStrategy is returned for a strategy name that is not recognised.
	ErrUnknownStrategy = errors.New("unknown selection strategy")

	// ErrDeleteFailed wraps a failure of the whole delete batch call.
	ErrDeleteFailed = errors.New("delete batch failed")
)
