package cache

import "errors"

// ErrCacheMiss indicates the requested key was not found in cache.
// This is not an error condition for callers using the cache-aside pattern:
// it means the value has to be loaded from the backing store.
//
// Example usage:
//
//	err := c.Get(ctx, key, &snapshot)
//	if errors.Is(err, cache.ErrCacheMiss) {
//	    // Compute and store
//	} else if err != nil {
//	    // Handle other errors
//	}
var ErrCacheMiss = errors.New("cache miss")
