package supabase

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"

	"github.com/boddenberg/burger-place-bfa-go/internal/infra/resilience"
)

// eq builds a PostgREST equality filter with the value escaped.
func eq(column, value string) string {
	return column + "=eq." + url.QueryEscape(value)
}

// classify marks client errors as permanent so they are not retried.
func classify(err error) error {
	var se *statusError
	if errors.As(err, &se) && !se.retryable() {
		return resilience.Permanent(err)
	}
	return err
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
