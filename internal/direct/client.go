package direct

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	BaseURL        = "https://api.direct.yandex.com/json/v5/"
	SandboxBaseURL = "https://api-sandbox.direct.yandex.com/json/v5/"

	// Language of error messages returned by the API.
	acceptLanguage = "ru"
)

// ClientOpts configures a Client. Only Token is required.
type ClientOpts struct {
	// Token is the OAuth token sent as a bearer token.
	Token string
	// BaseURL overrides the API root (for testing).
	BaseURL string
	// Sandbox selects the sandbox API root when BaseURL is empty.
	Sandbox bool
	// ClientLogin is the advertiser login when acting as an agency.
	ClientLogin string
	// Transport defaults to a RestyTransport with HTTPTimeout.
	Transport   Transport
	HTTPTimeout time.Duration
	Poll        PollOptions
	Sleep       Sleeper
	Observer    Observer
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// Client talks to the Yandex Direct API v5.
type Client struct {
	baseURL  string
	reports  *ReportPoller
	entities *EntityFetcher
}

func NewClient(opts ClientOpts) (*Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: OAuth token is not set", ErrConfiguration)
	}

	baseURL := BaseURL
	if opts.Sandbox {
		baseURL = SandboxBaseURL
	}
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	transport := opts.Transport
	if transport == nil {
		transport = NewRestyTransport(opts.HTTPTimeout)
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	headers := map[string]string{
		"Authorization":   "Bearer " + token,
		"Accept-Language": acceptLanguage,
	}
	if opts.ClientLogin != "" {
		headers["Client-Login"] = opts.ClientLogin
	}

	reportHeaders := maps.Clone(headers)
	reportHeaders["processingMode"] = "auto"
	reportHeaders["returnMoneyInMicros"] = "true"
	reportHeaders["skipReportHeader"] = "true"
	reportHeaders["skipReportSummary"] = "true"

	reportLogger := logger.With().Str("component", "reports").Logger()
	c := &Client{
		baseURL: baseURL,
		reports: NewReportPoller(ReportPollerOpts{
			Transport: transport,
			URL:       baseURL + "reports",
			Headers:   reportHeaders,
			Poll:      opts.Poll,
			Sleep:     opts.Sleep,
			Observer:  observer,
			Logger:    &reportLogger,
		}),
		entities: &EntityFetcher{
			transport: transport,
			baseURL:   baseURL,
			headers:   headers,
			observer:  observer,
			logger:    logger.With().Str("component", "entities").Logger(),
		},
	}

	return c, nil
}

// BaseURL returns the API root the client sends requests to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Reports() *ReportPoller {
	return c.reports
}

func (c *Client) Entities() *EntityFetcher {
	return c.entities
}

// GetReport runs req to completion. See ReportPoller.Run.
func (c *Client) GetReport(ctx context.Context, req ReportRequest) (*Report, error) {
	return c.reports.Run(ctx, req)
}

func (c *Client) GetCampaigns(ctx context.Context, q EntityQuery) ([]EntityRecord, error) {
	return c.entities.GetCampaigns(ctx, q)
}

func (c *Client) GetAdGroups(ctx context.Context, q EntityQuery) ([]EntityRecord, error) {
	return c.entities.GetAdGroups(ctx, q)
}

func (c *Client) GetAds(ctx context.Context, q EntityQuery) ([]EntityRecord, error) {
	return c.entities.GetAds(ctx, q)
}
