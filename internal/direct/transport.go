package direct

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Request is a single POST to the API.
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the raw answer to a Request.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Transport sends requests to the API. Implementations must not retry,
// interpret or log responses, and must be safe for concurrent use.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// RestyTransport is the default Transport.
type RestyTransport struct {
	httpClient *resty.Client
}

var _ Transport = (*RestyTransport)(nil)

// NewRestyTransport creates a transport with retries disabled. A zero timeout
// leaves the per-request timeout to the caller's context.
func NewRestyTransport(timeout time.Duration) *RestyTransport {
	httpClient := resty.New().
		SetDebug(false).
		SetRetryCount(0).
		SetHeaders(
			map[string]string{
				"Accept":       "*/*",
				"Content-Type": "application/json; charset=utf-8",
			},
		)
	if timeout > 0 {
		httpClient.SetTimeout(timeout)
	}

	return &RestyTransport{httpClient: httpClient}
}

func (t *RestyTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	res, err := t.httpClient.
		NewRequest().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetBody(req.Body).
		Post(req.URL)
	if err != nil {
		return nil, &TransportError{URL: req.URL, Err: err}
	}

	return &Response{
		StatusCode: res.StatusCode(),
		Headers:    res.Header(),
		Body:       res.Body(),
	}, nil
}
