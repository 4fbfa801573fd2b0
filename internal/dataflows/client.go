package dataflows

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/dyike/PolyCortex/internal/errs"
	"github.com/go-resty/resty/v2"
)

const userAgent = "PolyCortex/1.0"

type clientOptions struct {
	timeout time.Duration
	retry   *RetryPolicy
	cache   *ResponseCache
}

// Option customizes a provider client.
type Option func(*clientOptions)

func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithRetryPolicy(cfg *RetryPolicy) Option {
	return func(o *clientOptions) {
		if cfg != nil {
			o.retry = cfg
		}
	}
}

func WithCache(cache *ResponseCache) Option {
	return func(o *clientOptions) {
		o.cache = cache
	}
}

func buildOptions(opts []Option) clientOptions {
	o := clientOptions{
		timeout: 60 * time.Second,
		retry:   DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newRestClient(baseURL string, o clientOptions) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(o.timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		SetDisableWarn(true)
}

// classify turns a transport error or non-2xx response into a DomainError.
func classify(provider string, resp *resty.Response, err error) error {
	if err != nil {
		var netErr net.Error
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
			return errs.Transient("NETWORK", provider+" request failed").WithCause(err)
		default:
			return errs.Transient("REQUEST", provider+" request failed").WithCause(err)
		}
	}
	if resp.IsError() {
		body := strings.TrimSpace(resp.String())
		if len(body) > 200 {
			body = body[:200]
		}
		return errs.FromStatus(provider, resp.StatusCode(), body)
	}
	return nil
}

func decodeError(provider string, err error) error {
	return errs.Validation("DECODE", fmt.Sprintf("%s returned an unexpected payload", provider)).WithCause(err)
}
