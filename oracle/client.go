// oracle/client.go
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"time_horizon/logs"
	"time_horizon/utils"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

// Ensure HTTPOracle implements Oracle
var _ Oracle = (*HTTPOracle)(nil)

// scoreResponse is the JSON body both indicator services return.
type scoreResponse struct {
	Score float64 `json:"score"`
}

// HTTPOracle queries a remote indicator service. Calls go through a circuit
// breaker so a failing provider is skipped quickly instead of eating the deadline.
type HTTPOracle struct {
	name    string
	url     string
	params  map[string]string
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPOracle creates a client for the service at url. apiKey may be empty.
func NewHTTPOracle(name, url, apiKey string, params map[string]string, timeout time.Duration) *HTTPOracle {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logs.Warnf("[Oracle] %s breaker %s -> %s", name, from, to)
	}

	return &HTTPOracle{
		name:    name,
		url:     url,
		params:  params,
		http:    client,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// NewSentimentClient builds the social-media fragility client.
func NewSentimentClient(url, apiKey string, keywords []string, timeWindow string, minVirality int, timeout time.Duration) *HTTPOracle {
	return NewHTTPOracle("sentiment", url, apiKey, map[string]string{
		"keywords":     strings.Join(keywords, ","),
		"time_window":  timeWindow,
		"min_virality": strconv.Itoa(minVirality),
	}, timeout)
}

// NewGeopoliticalClient builds the geopolitical risk feed client.
func NewGeopoliticalClient(url, apiKey string, timeout time.Duration) *HTTPOracle {
	return NewHTTPOracle("geopolitical", url, apiKey, nil, timeout)
}

func (c *HTTPOracle) Name() string { return c.name }

// Fetch performs one request. The result is clamped into [0,1].
func (c *HTTPOracle) Fetch(ctx context.Context) (float64, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.request(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, fmt.Errorf("%s: %w: %v", c.name, ErrUnavailable, err)
		}
		return 0, err
	}
	return utils.Clamp01(v.(float64)), nil
}

func (c *HTTPOracle) request(ctx context.Context) (float64, error) {
	var out scoreResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(c.params).
		SetResult(&out).
		Get(c.url)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return 0, fmt.Errorf("%s: %w: %v", c.name, ErrTimeout, err)
		}
		return 0, fmt.Errorf("%s: %w: %v", c.name, ErrUnavailable, err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("%s: %w: HTTP %d, body: %s", c.name, ErrUnavailable, resp.StatusCode(), resp.String())
	}
	return out.Score, nil
}
