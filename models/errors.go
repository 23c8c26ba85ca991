package models

import "errors"

// Engine error taxonomy. Callers match with errors.Is; sites wrap with
// fmt.Errorf("%w: ...", Err...) to attach detail.
var (
	// ErrConfiguration reports an invalid period or window relative to the
	// series length, or an unknown parameter value.
	ErrConfiguration = errors.New("configuration error")

	// ErrData reports missing or non-finite price points that should have
	// been filtered before reaching the indicator functions.
	ErrData = errors.New("data error")

	// ErrFetch reports a provider or network failure at the scan boundary.
	ErrFetch = errors.New("fetch error")

	// ErrComputation reports an unexpected NaN or Infinity in an output
	// that should be finite under valid input.
	ErrComputation = errors.New("computation error")
)
