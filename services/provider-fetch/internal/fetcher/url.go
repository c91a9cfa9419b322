package fetcher

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL marks a target that cannot be fetched.
var ErrInvalidURL = errors.New("invalid url")

// MakeFullURL joins baseURL and u with exactly one slash and applies query.
// The result must be an http, https or data URL.
func MakeFullURL(u string, opts Options) (string, error) {
	left, right := opts.BaseURL, u
	if left != "" && !strings.HasSuffix(left, "/") {
		left += "/"
	}
	if left != "" {
		right = strings.TrimPrefix(right, "/")
	}
	full := left + right
	if !strings.HasPrefix(full, "http://") && !strings.HasPrefix(full, "https://") && !strings.HasPrefix(full, "data:") {
		return "", fmt.Errorf("%w %q: must start with http://, https:// or data:", ErrInvalidURL, full)
	}
	if len(opts.Query) == 0 {
		return full, nil
	}
	parsed, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidURL, full, err)
	}
	q := parsed.Query()
	for k, v := range opts.Query {
		q.Set(k, v)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
