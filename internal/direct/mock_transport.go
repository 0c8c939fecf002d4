package direct

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// MockTransport is a test double for Transport.
// If SendFunc is set it handles every call. Otherwise Responses are returned
// in order, one per call, and running out of them is an error.
// Thread-safe for use in concurrent tests.
type MockTransport struct {
	SendFunc  func(ctx context.Context, req *Request) (*Response, error)
	Responses []MockResponse

	mu sync.Mutex

	// Requests records every request sent, for assertions.
	Requests []Request
}

// MockResponse is one scripted answer.
type MockResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       string
	Err        error
}

var _ Transport = (*MockTransport)(nil)

func (m *MockTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, Request{
		URL:     req.URL,
		Headers: req.Headers,
		Body:    append([]byte(nil), req.Body...),
	})
	fn := m.SendFunc
	var next *MockResponse
	if fn == nil && len(m.Responses) > 0 {
		next = &m.Responses[0]
		m.Responses = m.Responses[1:]
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if next == nil {
		return nil, &TransportError{URL: req.URL, Err: fmt.Errorf("no scripted response left")}
	}
	if next.Err != nil {
		return nil, &TransportError{URL: req.URL, Err: next.Err}
	}

	headers := http.Header{}
	for k, v := range next.Headers {
		headers.Set(k, v)
	}
	return &Response{
		StatusCode: next.StatusCode,
		Headers:    headers,
		Body:       []byte(next.Body),
	}, nil
}

// Sent returns a copy of the recorded requests.
func (m *MockTransport) Sent() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.Requests...)
}
