package rulings

import "errors"

var (
	// ErrCorpusFetch wraps transport and parse failures while downloading the
	// corpus. The cache keeps its last good records.
	ErrCorpusFetch = errors.New("corpus fetch failed")
	// ErrCacheIO wraps failures reading or writing the persisted cache.
	ErrCacheIO = errors.New("rulings cache i/o failed")
	// ErrNoCache reports that nothing has been persisted yet.
	ErrNoCache = errors.New("no persisted rulings cache")
)
