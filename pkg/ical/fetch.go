package ical

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Fetcher retrieves raw ICS text. Failures are soft: the pipeline runs
// with an empty feed and a warning rather than aborting.
type Fetcher struct {
	client *http.Client
	logger zerolog.Logger
}

// NewFetcher builds a fetcher with a 10 second total timeout. TLS
// verification is disabled: field appliances routinely sit behind
// self-signed proxies and the feed is not a trust boundary.
func NewFetcher(logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		logger: logger.With().Str("component", "ics-fetch").Logger(),
	}
}

// Fetch GETs the feed and returns its text, or "" on any failure.
func (f *Fetcher) Fetch(ctx context.Context, url string) string {
	if url == "" {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		f.logger.Warn().Err(err).Str("url", url).Msg("ics request build failed")
		return ""
	}
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn().Err(err).Str("url", url).Msg("ics fetch failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("ics fetch non-2xx")
		return ""
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Warn().Err(err).Str("url", url).Msg("ics body read failed")
		return ""
	}
	return string(body)
}
