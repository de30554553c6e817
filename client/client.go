// Package client provides a Go client for a remote intake server.
//
// Usage:
//
//	c := client.New("http://intake.internal:8080")
//
//	res, err := c.Submit(ctx, submission.Request{
//	    ApplicationID: "app-1",
//	    UserID:        "user-1",
//	    Data:          payload,
//	})
//
//	st, err := c.Job(ctx, res.JobID)
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/api"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/job"
	"github.com/mwerk/intake/retry"
	"github.com/mwerk/intake/submission"
)

// Client talks to a remote intake server over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// New creates a client for the server at baseURL (no trailing slash).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   http.DefaultClient,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends a submission. Resubmitting identical content returns the
// original result with Deduplicated set.
func (c *Client) Submit(ctx context.Context, req submission.Request) (*api.SubmissionResponse, error) {
	var resp api.SubmissionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/submissions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submission fetches a submission record by ID.
func (c *Client) Submission(ctx context.Context, subID id.SubmissionID) (*submission.Submission, error) {
	var sub submission.Submission
	if err := c.do(ctx, http.MethodGet, "/v1/submissions/"+subID.String(), nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Job fetches the tracked status of a job.
func (c *Client) Job(ctx context.Context, jobID id.JobID) (*job.Status, error) {
	var st job.Status
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID.String(), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CancelJob cancels a live job.
func (c *Client) CancelJob(ctx context.Context, jobID id.JobID, reason string) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID.String()+"/cancel", body, nil)
}

// ReportFailure feeds a step failure signal into the server's retry
// coordinator. Used by out-of-process step executors.
func (c *Client) ReportFailure(ctx context.Context, sig retry.Signal) error {
	return c.do(ctx, http.MethodPost, "/v1/retries", sig, nil)
}

// Health checks server and store availability.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// do sends one request and decodes the response into out (when non-nil).
// Non-2xx responses are mapped back to intake sentinel errors where the
// status allows it.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("intake/client: marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("intake/client: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("intake/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.apiError(resp, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("intake/client: decode response: %w", err)
	}
	return nil
}

// apiError converts an error response into a Go error, restoring sentinel
// errors for statuses with an unambiguous meaning.
func (c *Client) apiError(resp *http.Response, method, path string) error {
	var body struct {
		Error  string   `json:"error"`
		Fields []string `json:"fields"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error == "" {
		body.Error = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		// The server reports which entity was missing in the message.
		if strings.Contains(body.Error, "submission") {
			return fmt.Errorf("%w (%s %s)", intake.ErrSubmissionNotFound, method, path)
		}
		return fmt.Errorf("%w (%s %s)", intake.ErrJobNotFound, method, path)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", intake.ErrInvalidTransition, body.Error)
	case http.StatusBadRequest:
		if len(body.Fields) > 0 {
			return &submission.ValidationError{Fields: body.Fields}
		}
	}

	return fmt.Errorf("intake/client: %s %s: %s (status %d)", method, path, body.Error, resp.StatusCode)
}
