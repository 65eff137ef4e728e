// Package fetcher performs the actual URL checks: a bounded pool of
// workers fetching, timing and content-checking due URLs.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/praksys/wsmonitor/internal/clock"
	"github.com/praksys/wsmonitor/internal/metric"
	"github.com/praksys/wsmonitor/internal/registry"
)

// maxBodyBytes caps how much of a response body is read for the regexp
// check.
const maxBodyBytes = 5 * 1024 * 1024

// Checker executes one check: HTTP GET with a hard timeout, elapsed time,
// final status, optional regexp match against the body.
type Checker struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	clk       clock.Clock
}

// NewChecker builds a Checker with the per-check timeout.
func NewChecker(timeout time.Duration, userAgent string, clk clock.Clock) *Checker {
	return &Checker{
		client:    &http.Client{},
		timeout:   timeout,
		userAgent: userAgent,
		clk:       clk,
	}
}

// Check fetches the entry's URL and always returns a Metric: failures are
// data, recorded with a sentinel return code. The fetch never outlives the
// configured timeout.
func (c *Checker) Check(ctx context.Context, e registry.Entry) metric.Metric {
	started := c.clk.Now()
	begin := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		// The request could not even be constructed.
		return metric.New(started, time.Since(begin), metric.ReturnCodeInvalid, false)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		// DNS failure, refused connection or timeout.
		return metric.New(started, time.Since(begin), metric.ReturnCodeUnreachable, false)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := time.Since(begin)
	if err != nil {
		return metric.New(started, elapsed, metric.ReturnCodeUnreachable, false)
	}

	regexCheck := true
	if e.Pattern != nil {
		regexCheck = e.Pattern.Match(body)
	}
	return metric.New(started, elapsed, resp.StatusCode, regexCheck)
}
