package handshake

import (
	"fmt"
	"net/url"
)

// Query parameter names read from the upgrade request.
const (
	ParamVersion = "version"
	ParamFormat  = "format"
	ParamClient  = "client"
)

// Params is the set of negotiation parameters carried by a connection request.
type Params interface {
	Get(key string) (string, bool)
}

// QueryParams adapts url.Values. Only the first value of a key counts.
type QueryParams url.Values

func (q QueryParams) Get(key string) (string, bool) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// ParseQuery extracts the parameters from a request URI such as
// "/?version=0.1.0&format=json".
func ParseQuery(uri string) (QueryParams, error) {
	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid request uri: %w", err)
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	return QueryParams(values), nil
}
