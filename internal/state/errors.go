package state

import "fmt"

// CacheCorruptionError reports a persisted file that exists but cannot be parsed.
type CacheCorruptionError struct {
	Path string
	Err  error
}

func (e *CacheCorruptionError) Error() string {
	return fmt.Sprintf("corrupt cache file %s: %v", e.Path, e.Err)
}

func (e *CacheCorruptionError) Unwrap() error {
	return e.Err
}
