package direct

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Outcome is the meaning of a single API response.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeReady
	OutcomeQueued
	OutcomeStillProcessing
	OutcomeBadRequest
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeQueued:
		return "queued"
	case OutcomeStillProcessing:
		return "still_processing"
	case OutcomeBadRequest:
		return "bad_request"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// retryInHeader is the header the reports endpoint uses to tell how many
// seconds to wait before resubmitting.
const retryInHeader = "retryIn"

// APIError is the body of an error response:
//
//	{"error": {"request_id": "...", "error_code": 8000, "error_string": "...", "error_detail": "..."}}
type APIError struct {
	RequestID   string `json:"request_id"`
	ErrorCode   int    `json:"error_code"`
	ErrorString string `json:"error_string"`
	ErrorDetail string `json:"error_detail"`
}

// Classification is the result of Classify.
type Classification struct {
	Outcome    Outcome
	StatusCode int
	// RetryIn is set for OutcomeQueued and OutcomeStillProcessing.
	RetryIn time.Duration
	Body    []byte
	// APIError is set when the body carried an error payload.
	APIError *APIError
	// Reason explains an OutcomeUnknown.
	Reason string
}

// Classify maps a raw response to an Outcome. An error payload in the body
// wins over the status code, since the API may embed errors in 2xx bodies.
func Classify(resp *Response) Classification {
	c := Classification{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}

	if apiErr, ok := parseAPIError(resp.Body); ok {
		c.Outcome = OutcomeBadRequest
		c.APIError = apiErr
		return c
	}

	switch resp.StatusCode {
	case http.StatusInternalServerError:
		c.Outcome = OutcomeUnavailable
	case http.StatusCreated, http.StatusAccepted:
		retryIn, err := parseRetryIn(resp.Headers)
		if err != nil {
			c.Outcome = OutcomeUnknown
			c.Reason = err.Error()
			return c
		}
		c.RetryIn = retryIn
		if resp.StatusCode == http.StatusCreated {
			c.Outcome = OutcomeQueued
		} else {
			c.Outcome = OutcomeStillProcessing
		}
	case http.StatusBadRequest:
		c.Outcome = OutcomeBadRequest
	default:
		c.Outcome = OutcomeReady
	}

	return c
}

// badRequest builds the error returned to callers for OutcomeBadRequest.
func (c Classification) badRequest() *BadRequestError {
	e := &BadRequestError{StatusCode: c.StatusCode}
	if c.APIError != nil {
		e.Message = c.APIError.ErrorString
		e.Detail = c.APIError.ErrorDetail
		e.Code = c.APIError.ErrorCode
		e.RequestID = c.APIError.RequestID
	}
	return e
}

func (c Classification) protocolViolation() *ProtocolViolationError {
	reason := c.Reason
	if reason == "" {
		reason = fmt.Sprintf("unexpected outcome %s", c.Outcome)
	}
	return &ProtocolViolationError{StatusCode: c.StatusCode, Reason: reason}
}

// parseAPIError reports whether body is a JSON object with an "error" object.
// Report payloads are TSV, so anything that does not start with '{' is
// skipped without attempting to decode it.
func parseAPIError(body []byte) (*APIError, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, false
	}
	raw := bytes.TrimSpace(envelope.Error)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}

	apiErr := &APIError{}
	if err := json.Unmarshal(raw, apiErr); err != nil {
		// Unexpected field types; still an error payload.
		apiErr.ErrorString = string(raw)
	}
	return apiErr, true
}

func parseRetryIn(headers http.Header) (time.Duration, error) {
	value := strings.TrimSpace(headers.Get(retryInHeader))
	if value == "" {
		return 0, fmt.Errorf("missing %s header", retryInHeader)
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("invalid %s header %q", retryInHeader, value)
	}
	return time.Duration(seconds) * time.Second, nil
}
