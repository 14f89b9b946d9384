package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/livedraft/internal/domain/model"
	"github.com/okian/livedraft/pkg/logger"
	"github.com/okian/livedraft/pkg/metrics"
)

// Default HTTP source configuration constants.
const (
	defaultTimeout      = 10 * time.Second
	defaultMaxRetries   = 3
	defaultInitialDelay = 200 * time.Millisecond
	defaultMaxDelay     = 2 * time.Second
	resultsPath         = "/getDraftResults"
	maxErrorBody        = 512
)

// HTTPOption applies a configuration option to the HTTPSource.
type HTTPOption func(*HTTPSource)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) HTTPOption {
	return func(s *HTTPSource) { s.apiKey = key }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a failed attempt is retried within one
// poll.
func WithMaxRetries(n int) HTTPOption {
	return func(s *HTTPSource) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryDelays sets the exponential backoff bounds between attempts.
func WithRetryDelays(initial, maxDelay time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if initial > 0 && maxDelay >= initial {
			s.initialDelay = initial
			s.maxDelay = maxDelay
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) HTTPOption {
	return func(s *HTTPSource) {
		if l != nil {
			s.log = l
		}
	}
}

// HTTPSource polls a provider's draft results endpoint.
type HTTPSource struct {
	baseURL      string
	apiKey       string
	timeout      time.Duration
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	client       *http.Client
	log          logger.Logger
}

// NewHTTPSource creates a source for the provider at baseURL.
func NewHTTPSource(baseURL string, opts ...HTTPOption) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid source url %q", baseURL)
	}
	s := &HTTPSource{
		baseURL:      strings.TrimRight(baseURL, "/"),
		timeout:      defaultTimeout,
		maxRetries:   defaultMaxRetries,
		initialDelay: defaultInitialDelay,
		maxDelay:     defaultMaxDelay,
		client:       &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("source")
	}
	return s, nil
}

// statusError is a non-200 response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// Picks fetches the results document, retrying transport failures and
// retryable statuses with exponential backoff.
func (s *HTTPSource) Picks(ctx context.Context, id model.DraftID) ([]model.PickReport, error) {
	endpoint := s.baseURL + resultsPath + "?" + url.Values{"leagueId": {id.LeagueID}}.Encode()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.initialDelay
	eb.MaxInterval = s.maxDelay

	attempt := 0
	picks, err := backoff.Retry(ctx, func() ([]model.PickReport, error) {
		attempt++
		return s.fetch(ctx, endpoint)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(s.maxRetries+1)), //nolint:gosec // maxRetries is non-negative
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.RecordSourceRetry("http")
			s.log.Debug(ctx, "retrying draft source",
				logger.String("league_id", id.LeagueID),
				logger.Int("attempt", attempt),
				logger.Duration("backoff", next),
				logger.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return picks, nil
}

func (s *HTTPSource) fetch(ctx context.Context, endpoint string) ([]model.PickReport, error) {
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
		if retryable(resp.StatusCode) {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	picks, err := Decode(resp.Body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return picks, nil
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
