package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/Paintersrp/rune2e/internal/config"
)

// bodySnippetLimit caps how much of an unready response is echoed back.
const bodySnippetLimit = 256

// httpCheck issues a GET against the application server and accepts either
// the configured status codes or, when none are listed, any 2xx/3xx reply.
type httpCheck struct {
	client   *http.Client
	url      string
	accepted []int
}

func newHTTPCheck(spec *config.HTTPProbeSpec) *httpCheck {
	return &httpCheck{
		// Redirects are answers; a dev server bouncing to /login is up.
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		url:      spec.URL,
		accepted: slices.Clone(spec.ExpectStatus),
	}
}

func (c *httpCheck) accepts(status int) bool {
	if len(c.accepted) > 0 {
		return slices.Contains(c.accepted, status)
	}
	return status >= 200 && status < 400
}

func (c *httpCheck) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", c.url, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, bodySnippetLimit))
	_, _ = io.Copy(io.Discard, resp.Body)

	if c.accepts(resp.StatusCode) {
		return nil
	}
	msg := fmt.Sprintf("GET %s answered %d", c.url, resp.StatusCode)
	if len(c.accepted) > 0 {
		msg += fmt.Sprintf(" (want %v)", c.accepted)
	}
	if body := strings.TrimSpace(string(snippet)); body != "" {
		msg += ": " + strings.ReplaceAll(body, "\n", " ")
	}
	return errors.New(msg)
}
