package direct

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sleeper blocks for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PollOptions bound a report run. The zero value polls until the report is
// ready, however long the server keeps asking to wait.
type PollOptions struct {
	// MaxPolls is the maximum number of requests per run; 0 means no limit.
	MaxPolls int
	// Timeout is the overall deadline per run; 0 means no deadline.
	Timeout time.Duration
}

// Observer receives events from report runs and entity listings.
type Observer interface {
	ObservePoll(reportType string, outcome Outcome, wait time.Duration)
	ObserveReport(reportType string, rounds int, elapsed time.Duration, err error)
	ObserveEntities(resource string, count int, err error)
}

type nopObserver struct{}

func (nopObserver) ObservePoll(string, Outcome, time.Duration) {}
func (nopObserver) ObserveReport(string, int, time.Duration, error) {}
func (nopObserver) ObserveEntities(string, int, error) {}

// Report is a finished report.
type Report struct {
	Type string
	// Body is the raw TSV payload.
	Body string
	// Rounds is the number of requests it took.
	Rounds int
	// Waited is the total time spent honoring retryIn.
	Waited time.Duration
}

// ReportPoller submits report jobs and polls until they are ready.
type ReportPoller struct {
	transport Transport
	url       string
	headers   map[string]string
	opts      PollOptions
	sleep     Sleeper
	observer  Observer
	logger    zerolog.Logger
}

// ReportPollerOpts configures a ReportPoller. Transport and URL are required.
type ReportPollerOpts struct {
	Transport Transport
	URL       string
	Headers   map[string]string
	Poll      PollOptions
	Sleep     Sleeper
	Observer  Observer
	Logger    *zerolog.Logger
}

func NewReportPoller(opts ReportPollerOpts) *ReportPoller {
	p := &ReportPoller{
		transport: opts.Transport,
		url:       opts.URL,
		headers:   opts.Headers,
		opts:      opts.Poll,
		sleep:     opts.Sleep,
		observer:  opts.Observer,
		logger:    zerolog.Nop(),
	}
	if p.sleep == nil {
		p.sleep = SleepContext
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	if opts.Logger != nil {
		p.logger = *opts.Logger
	}
	return p
}

// WithPollOptions returns a copy of the poller using opts.
func (p *ReportPoller) WithPollOptions(opts PollOptions) *ReportPoller {
	cp := *p
	cp.opts = opts
	return &cp
}

// Run submits req and resubmits the identical body every time the API
// answers 201 or 202, waiting exactly the retryIn it asked for. It returns
// when the report is ready or on the first terminal failure.
func (p *ReportPoller) Run(ctx context.Context, req ReportRequest) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := req.encode()
	if err != nil {
		return nil, err
	}

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	logger := p.logger.With().
		Str("run_id", uuid.NewString()).
		Str("report_type", req.ReportType).
		Logger()

	started := time.Now()
	report, err := p.poll(ctx, logger, body, req.ReportType)
	elapsed := time.Since(started)

	rounds := 0
	if report != nil {
		rounds = report.Rounds
	}
	p.observer.ObserveReport(req.ReportType, rounds, elapsed, err)

	if err != nil {
		logger.Warn().Err(err).Str("kind", ErrorKind(err)).Dur("elapsed", elapsed).Msg("report failed")
		return nil, err
	}
	logger.Info().
		Int("rounds", report.Rounds).
		Dur("waited", report.Waited).
		Int("bytes", len(report.Body)).
		Msg("report ready")
	return report, nil
}

func (p *ReportPoller) poll(ctx context.Context, logger zerolog.Logger, body []byte, reportType string) (*Report, error) {
	report := &Report{Type: reportType}
	request := &Request{
		URL:     p.url,
		Headers: p.headers,
		Body:    body,
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, timeoutError(err)
		}

		report.Rounds++
		resp, err := p.transport.Send(ctx, request)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, timeoutError(ctxErr)
			}
			return report, err
		}

		c := Classify(resp)
		p.observer.ObservePoll(reportType, c.Outcome, c.RetryIn)
		logger.Debug().
			Int("round", report.Rounds).
			Int("status", c.StatusCode).
			Str("outcome", c.Outcome.String()).
			Msg("report poll")

		switch c.Outcome {
		case OutcomeReady:
			report.Body = string(c.Body)
			return report, nil

		case OutcomeQueued, OutcomeStillProcessing:
			if p.opts.MaxPolls > 0 && report.Rounds >= p.opts.MaxPolls {
				return report, fmt.Errorf("%w: report not ready after %d polls", ErrTimeout, report.Rounds)
			}
			logger.Info().
				Int("round", report.Rounds).
				Dur("retry_in", c.RetryIn).
				Msg("offline report, waiting")
			if err := p.sleep(ctx, c.RetryIn); err != nil {
				return report, timeoutError(err)
			}
			report.Waited += c.RetryIn

		case OutcomeBadRequest:
			return report, c.badRequest()

		case OutcomeUnavailable:
			return report, fmt.Errorf("%w (status: %d)", ErrServerUnavailable, c.StatusCode)

		default:
			return report, c.protocolViolation()
		}
	}
}
