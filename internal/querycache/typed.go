package querycache

import (
	"context"
	"fmt"
)

// FetchAs is Fetch for a fetcher producing *T. A nil *T result is returned as
// nil and not cached.
func FetchAs[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (*T, error)) (*T, error) {
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		result, err := fetch(ctx)
		if err != nil || result == nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil || v == nil {
		return nil, err
	}
	typed, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("querycache: key %s holds %T", key, v)
	}
	return typed, nil
}

// GetAs is Get with a type assertion; a value of another type is a miss.
func GetAs[T any](c *Cache, key Key) (*T, bool) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	typed, ok := v.(*T)
	return typed, ok
}
