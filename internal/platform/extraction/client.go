// Package extraction implements inpatient.Extractor against an external
// document-understanding service.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/wardops/wardops/internal/domain/inpatient"
)

// Client posts intake documents to the extractor and decodes the admission
// fields it returns. The service answers with the admission form as JSON,
// optionally wrapped in {"fields": ...}.
type Client struct {
	http *resty.Client
}

type response struct {
	Fields *inpatient.AdmissionRequest `json:"fields"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient builds a client for baseURL. Uploads are not retried since the
// document reader is consumed by the first attempt.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// Extract uploads doc as the "document" form field of POST /extract.
func (c *Client) Extract(ctx context.Context, doc inpatient.Document) (*inpatient.AdmissionRequest, error) {
	log := zerolog.Ctx(ctx)
	start := time.Now()

	var wrapped response
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("document", doc.Filename, bytes.NewReader(doc.Data)).
		SetError(&apiErr).
		Post("/extract")
	if err != nil {
		log.Error().Err(err).Str("filename", doc.Filename).Msg("extractor call failed")
		return nil, fmt.Errorf("call extractor: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		log.Error().Int("status", resp.StatusCode()).Str("msg", msg).Msg("extractor returned error")
		return nil, fmt.Errorf("extractor error: %s (status: %d)", msg, resp.StatusCode())
	}

	body := resp.Body()
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode extractor response: %w", err)
	}
	form := wrapped.Fields
	if form == nil {
		form = &inpatient.AdmissionRequest{}
		if err := json.Unmarshal(body, form); err != nil {
			return nil, fmt.Errorf("decode extractor response: %w", err)
		}
	}

	log.Info().
		Str("filename", doc.Filename).
		Int("bytes", len(doc.Data)).
		Dur("elapsed", time.Since(start)).
		Msg("document extracted")
	return form, nil
}
