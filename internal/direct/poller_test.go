package direct

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper records requested waits instead of sleeping.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestPoller(transport Transport, sleeper *recordingSleeper, opts PollOptions) *ReportPoller {
	return NewReportPoller(ReportPollerOpts{
		Transport: transport,
		URL:       "https://api.example/json/v5/reports",
		Headers:   map[string]string{"Authorization": "Bearer foo"},
		Poll:      opts,
		Sleep:     sleeper.Sleep,
	})
}

func testReportRequest() ReportRequest {
	return ReportRequest{
		ReportType:    "CAMPAIGN_PERFORMANCE_REPORT",
		FieldNames:    []string{"CampaignId", "Clicks"},
		DateRangeType: DateRangeCustom,
		DateFrom:      "2020-10-01",
		DateTo:        "2020-10-02",
		IncludeVAT:    true,
	}
}

func TestReportPollerRun_QueuedThenProcessingThenReady(t *testing.T) {
	transport := &MockTransport{Responses: []MockResponse{
		{StatusCode: 201, Headers: map[string]string{"retryIn": "5"}},
		{StatusCode: 202, Headers: map[string]string{"retryIn": "3"}},
		{StatusCode: 200, Body: "X\tY\n1\t2\n"},
	}}
	sleeper := &recordingSleeper{}

	report, err := newTestPoller(transport, sleeper, PollOptions{}).Run(context.Background(), testReportRequest())
	require.NoError(t, err)
	assert.Equal(t, "X\tY\n1\t2\n", report.Body)
	assert.Equal(t, 3, report.Rounds)
	assert.Equal(t, 8*time.Second, report.Waited)
	assert.Equal(t, []time.Duration{5 * time.Second, 3 * time.Second}, sleeper.waits)

	sent := transport.Sent()
	require.Len(t, sent, 3)
	for _, req := range sent[1:] {
		assert.Equal(t, sent[0].Body, req.Body)
		assert.Equal(t, sent[0].URL, req.URL)
	}
}

func TestReportPollerRun_ReadyImmediately(t *testing.T) {
	transport := &MockTransport{Responses: []MockResponse{
		{StatusCode: 200, Body: "Date\tClicks\n"},
	}}
	sleeper := &recordingSleeper{}

	report, err := newTestPoller(transport, sleeper, PollOptions{}).Run(context.Background(), testReportRequest())
	require.NoError(t, err)
	assert.Equal(t, "Date\tClicks\n", report.Body)
	assert.Equal(t, 1, report.Rounds)
	assert.Empty(t, sleeper.waits)
}

func TestReportPollerRun_FirstResponseStillProcessing(t *testing.T) {
	transport := &MockTransport{Responses: []MockResponse{
		{StatusCode: 202, Headers: map[string]string{"retryIn": "2"}},
		{StatusCode: 202, Headers: map[string]string{"retryIn": "2"}},
		{StatusCode: 200, Body: "ok"},
	}}
	sleeper := &recordingSleeper{}

	report, err := newTestPoller(transport, sleeper, PollOptions{}).Run(context.Background(), testReportRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", report.Body)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeper.waits)
}

func TestReportPollerRun_BadRequest(t *testing.T) {
	transport := &MockTransport{Responses: []MockResponse{
		{StatusCode: 400, Body: `{"error":{"error_string":"S","error_detail":"D"}}`},
	}}
	sleeper := &recordingSleeper{}

	report, err := newTestPoller(transport, sleeper, PollOptions{}).Run(context.Background(), testReportRequest())
	assert.Nil(t, report)

	var badRequest *BadRequestError
	require.ErrorAs(t, err, &badRequest)
	assert.Equal(t, "S", badRequest.Message)
	assert.Equal(t, "D", badRequest.Detail)
	assert.Len(t, transport.Sent(), 1)
	assert.Empty(t, sleeper.waits)
}

func TestReportPollerRun_ErrorPayloadAfterQueued(t *testing.T) {
	transport := &MockTransport{Responses: []MockResponse{
		{StatusCode: 201, Headers: map[string]string{"retryIn": "1"}},
		{StatusCode: 200, Body: `{"error":{"error_string":"Report failed","error_detail":"internal"}}`},
	}}

	_, err := newTestPoller(transport, &recordingSleeper{}, PollOptions{}).Run(context.Background(), testReportRequest())
	var badRequest *BadRequestError
	require.ErrorAs(t, err, &badRequest)
	assert.Equal(t, "Report failed", badRequest.Message)
	assert.Len(t, transport.Sent(), 2)
}

func TestReportPollerRun_Unavailable(t *testing.T) {
	transport := &MockTransport{Responses: []MockResponse{
		{StatusCode: 500, Body: "Internal Server Error"},
	}}

	_, err := newTestPoller(transport, &recordingSleeper{}, PollOptions{}).Run(context.Background(), testReportRequest())
	assert.ErrorIs(t, err, ErrServerUnavailable)
	assert.Len(t, transport.Sent(), 1)
}

func TestReportPollerRun_MissingRetryIn(t *testing.T) {
	transport := &MockTransport{Responses: []MockResponse{
		{StatusCode: 201},
	}}

	_, err := newTestPoller(transport, &recordingSleeper{}, PollOptions{}).Run(context.Background(), testReportRequest())
	var protocol *ProtocolViolationError
	require.ErrorAs(t, err, &protocol)
	assert.Equal(t, 201, protocol.StatusCode)
	assert.Contains(t, protocol.Reason, "retryIn")
	assert.Len(t, transport.Sent(), 1)
}

func TestReportPollerRun_ValidationBeforeNetwork(t *testing.T) {
	transport := &MockTransport{}
	req := testReportRequest()
	req.FieldNames = nil

	_, err := newTestPoller(transport, &recordingSleeper{}, PollOptions{}).Run(context.Background(), req)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, transport.Sent())
}

func TestReportPollerRun_TransportError(t *testing.T) {
	transport := &MockTransport{Responses: []MockResponse{
		{Err: errors.New("connection refused")},
	}}

	_, err := newTestPoller(transport, &recordingSleeper{}, PollOptions{}).Run(context.Background(), testReportRequest())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "transport", ErrorKind(err))
	assert.Len(t, transport.Sent(), 1)
}

func TestReportPollerRun_MaxPolls(t *testing.T) {
	transport := &MockTransport{SendFunc: func(ctx context.Context, req *Request) (*Response, error) {
		return response(202, "", "retryIn", "10"), nil
	}}
	sleeper := &recordingSleeper{}

	_, err := newTestPoller(transport, sleeper, PollOptions{MaxPolls: 3}).Run(context.Background(), testReportRequest())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Len(t, transport.Sent(), 3)
	assert.Len(t, sleeper.waits, 2)
}

func TestReportPollerRun_ContextDeadline(t *testing.T) {
	transport := &MockTransport{SendFunc: func(ctx context.Context, req *Request) (*Response, error) {
		return response(202, "", "retryIn", "60"), nil
	}}
	poller := NewReportPoller(ReportPollerOpts{
		Transport: transport,
		URL:       "https://api.example/json/v5/reports",
		Poll:      PollOptions{Timeout: 20 * time.Millisecond},
	})

	started := time.Now()
	_, err := poller.Run(context.Background(), testReportRequest())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Len(t, transport.Sent(), 1)
}

func TestReportPollerRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transport := &MockTransport{SendFunc: func(_ context.Context, req *Request) (*Response, error) {
		cancel()
		return response(201, "", "retryIn", "1"), nil
	}}

	_, err := newTestPoller(transport, &recordingSleeper{}, PollOptions{}).Run(ctx, testReportRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestReportPollerWithPollOptions(t *testing.T) {
	base := newTestPoller(&MockTransport{}, &recordingSleeper{}, PollOptions{})
	limited := base.WithPollOptions(PollOptions{MaxPolls: 1})
	assert.Equal(t, 0, base.opts.MaxPolls)
	assert.Equal(t, 1, limited.opts.MaxPolls)
}

type observedPoll struct {
	outcome Outcome
	wait    time.Duration
}

type recordingObserver struct {
	mu      sync.Mutex
	polls   []observedPoll
	reports []error
	rounds  []int
	lists   map[string]int
}

func (o *recordingObserver) ObservePoll(reportType string, outcome Outcome, wait time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polls = append(o.polls, observedPoll{outcome, wait})
}

func (o *recordingObserver) ObserveReport(reportType string, rounds int, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, err)
	o.rounds = append(o.rounds, rounds)
}

func (o *recordingObserver) ObserveEntities(resource string, count int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lists == nil {
		o.lists = map[string]int{}
	}
	o.lists[resource] += count
}

func TestReportPollerRun_Observer(t *testing.T) {
	transport := &MockTransport{Responses: []MockResponse{
		{StatusCode: 201, Headers: map[string]string{"retryIn": "4"}},
		{StatusCode: 200, Body: "ok"},
	}}
	observer := &recordingObserver{}
	sleeper := &recordingSleeper{}
	poller := NewReportPoller(ReportPollerOpts{
		Transport: transport,
		URL:       "https://api.example/json/v5/reports",
		Sleep:     sleeper.Sleep,
		Observer:  observer,
	})

	_, err := poller.Run(context.Background(), testReportRequest())
	require.NoError(t, err)
	assert.Equal(t, []observedPoll{
		{OutcomeQueued, 4 * time.Second},
		{OutcomeReady, 0},
	}, observer.polls)
	assert.Equal(t, []error{nil}, observer.reports)
	assert.Equal(t, []int{2}, observer.rounds)
}

func TestReportPollerRun_OverHTTP(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
		calls  int
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		mu.Lock()
		bodies = append(bodies, string(buf))
		calls++
		n := calls
		mu.Unlock()

		assert.Equal(t, "Bearer foo", r.Header.Get("Authorization"))
		assert.Equal(t, "auto", r.Header.Get("processingMode"))
		assert.Equal(t, "true", r.Header.Get("skipReportHeader"))

		if n == 1 {
			w.Header().Set("retryIn", "0")
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.Header().Set("Content-Type", "text/tab-separated-values")
		_, _ = w.Write([]byte("CampaignId\tClicks\n1\t2\n"))
	}))
	defer ts.Close()

	client, err := NewClient(ClientOpts{Token: "foo", BaseURL: ts.URL})
	require.NoError(t, err)

	report, err := client.GetReport(context.Background(), testReportRequest())
	require.NoError(t, err)
	assert.Equal(t, "CampaignId\tClicks\n1\t2\n", report.Body)
	assert.Equal(t, 2, report.Rounds)
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
}
