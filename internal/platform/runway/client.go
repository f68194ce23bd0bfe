package runway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/remote"
	"github.com/sethvargo/go-retry"
)

// Remote operations addressed by remote.CreateRequest.Endpoint.
const (
	EndpointTextToImage  = "text_to_image"
	EndpointImageToVideo = "image_to_video"
	EndpointVideoUpscale = "video_upscale"
)

const (
	versionHeader   = "X-Runway-Version"
	maxErrorBody    = 4 << 10
	retryBaseDelay  = 500 * time.Millisecond
	retryJitterPerc = 20
)

var (
	// ErrInvalidConfig is returned by NewClient for unusable settings.
	ErrInvalidConfig = errors.New("invalid runway configuration")

	// ErrUnknownEndpoint is returned when a create request names no known operation.
	ErrUnknownEndpoint = errors.New("unknown runway endpoint")
)

// Client is an HTTP implementation of remote.Client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	version    string
	maxRetries uint64
	retryBase  time.Duration
	logger     *slog.Logger
}

var _ remote.Client = (*Client)(nil)

// NewClient creates a Client from cfg. A nil httpClient selects one with
// cfg.RequestTimeout as its timeout.
func NewClient(cfg config.RunwayConfig, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key cannot be empty", ErrInvalidConfig)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
	}
	if cfg.APIVersion == "" {
		return nil, fmt.Errorf("%w: api version cannot be empty", ErrInvalidConfig)
	}
	if cfg.CreateMaxRetries < 0 {
		return nil, fmt.Errorf("%w: create max retries cannot be negative", ErrInvalidConfig)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		version:    cfg.APIVersion,
		maxRetries: uint64(cfg.CreateMaxRetries),
		retryBase:  retryBaseDelay,
		logger:     logger.With(slog.String("component", "runway_client")),
	}, nil
}

// CreateTask implements remote.Client. Creation is not idempotent, so only
// attempts that cannot have started a task are retried: rate-limited
// requests and requests that never reached the server.
func (c *Client) CreateTask(ctx context.Context, req remote.CreateRequest) (*remote.Task, error) {
	body, err := buildCreateBody(req)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithJitterPercent(retryJitterPerc,
		retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase)))

	var (
		resp    taskResponse
		attempt int
	)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.do(ctx, http.MethodPost, "/"+req.Endpoint, body, &resp)
		if err == nil {
			return nil
		}

		if !safeToResubmit(err) {
			return err
		}

		c.logger.WarnContext(ctx, "create task attempt failed",
			slog.String("endpoint", req.Endpoint),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("create %s task: %w", req.Endpoint, err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("create %s task: %w: missing task id", req.Endpoint, remote.ErrInvalidResponse)
	}

	task := resp.toTask()
	c.logger.InfoContext(ctx, "remote task created",
		slog.String("task_id", task.ID),
		slog.String("endpoint", req.Endpoint),
		slog.String("status", task.Status))
	return task, nil
}

// TaskStatus implements remote.Client.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*remote.Task, error) {
	var resp taskResponse
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return resp.toTask(), nil
}

// CancelTask implements remote.Client. A 404 counts as success.
func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	err := c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(taskID), nil, nil)
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel task %s: %w", taskID, err)
	}
	return nil
}

// Organization returns the account's remaining remote credit balance.
func (c *Client) Organization(ctx context.Context) (*Organization, error) {
	var org Organization
	if err := c.do(ctx, http.MethodGet, "/organization", nil, &org); err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", remote.ErrTransport, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set(versionHeader, c.version)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", remote.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &remote.APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", remote.ErrInvalidResponse, err)
	}
	return nil
}

// safeToResubmit reports whether a failed create request is known not to
// have created a remote task.
func safeToResubmit(err error) bool {
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func buildCreateBody(req remote.CreateRequest) ([]byte, error) {
	var payload any
	switch req.Endpoint {
	case EndpointTextToImage:
		p := textToImageRequest{
			PromptText:        req.PromptText,
			Ratio:             req.Ratio,
			Model:             req.Model,
			Seed:              req.Seed,
			ContentModeration: &contentModeration{PublicFigureThreshold: "auto"},
		}
		for _, ref := range req.ReferenceImages {
			p.ReferenceImages = append(p.ReferenceImages, referenceImage{URI: ref.URI, Tag: ref.Tag})
		}
		payload = p
	case EndpointImageToVideo:
		payload = imageToVideoRequest{
			PromptImage: req.PromptImage,
			Model:       req.Model,
			Ratio:       req.Ratio,
			Seed:        req.Seed,
			PromptText:  req.PromptText,
			Duration:    req.Duration,
		}
	case EndpointVideoUpscale:
		payload = videoUpscaleRequest{VideoURI: req.VideoURI, Model: req.Model}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, req.Endpoint)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.Endpoint, err)
	}
	return body, nil
}

func (r taskResponse) toTask() *remote.Task {
	return &remote.Task{
		ID:          r.ID,
		Status:      r.Status,
		Output:      r.Output,
		Failure:     r.Failure,
		FailureCode: r.FailureCode,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
