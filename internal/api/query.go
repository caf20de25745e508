package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	dErrors "procura/pkg/domain-errors"
)

// On401 selects what a query does when the session turns out to be over.
type On401 int

const (
	// On401Throw returns the unauthorized error.
	On401Throw On401 = iota
	// On401ReturnNull returns a nil result and no error.
	On401ReturnNull
)

func (b On401) String() string {
	if b == On401ReturnNull {
		return "returnNull"
	}
	return "throw"
}

// maxKeySegments is the deepest key a query resolves: base, id, sub-resource.
const maxKeySegments = 3

// ResolvePath turns a query key into a backend path: ["projects", "p-100",
// "budget"] becomes "/projects/p-100/budget". Keys must have one to three
// non-empty segments.
func ResolvePath(key []string) (string, error) {
	if len(key) == 0 || len(key) > maxKeySegments {
		return "", dErrors.New(dErrors.CodeBadRequest,
			"query key must have 1 to "+strconv.Itoa(maxKeySegments)+" segments, got "+strconv.Itoa(len(key)))
	}
	var b strings.Builder
	for _, segment := range key {
		if strings.TrimSpace(segment) == "" {
			return "", dErrors.New(dErrors.CodeBadRequest, "query key has an empty segment")
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(segment))
	}
	return b.String(), nil
}

// QueryFetch GETs the resource named by key and decodes it into T.
func QueryFetch[T any](ctx context.Context, c *Client, key []string, on401 On401) (*T, error) {
	return QueryFetchParams[T](ctx, c, key, nil, on401)
}

// QueryFetchParams is QueryFetch with query string parameters.
func QueryFetchParams[T any](ctx context.Context, c *Client, key []string, params url.Values, on401 On401) (*T, error) {
	path, err := ResolvePath(key)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	resp, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		if on401 == On401ReturnNull && sessionOver(err) {
			return nil, nil
		}
		return nil, err
	}

	var result T
	if err := resp.Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func sessionOver(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeUnauthorized) || dErrors.HasCode(err, dErrors.CodeMalformedToken)
}
