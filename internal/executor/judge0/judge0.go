// Package judge0 runs code on a Judge0 CE instance (self-hosted or RapidAPI).
//
// A run is two calls: POST /submissions returns a token, then
// GET /submissions/{token} is polled until the status leaves
// "In Queue" / "Processing". All payloads are base64 encoded so that
// arbitrary bytes survive the round trip.
package judge0

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/executor"
)

// Judge0 status ids we branch on.
const (
	statusInQueue    = 1
	statusProcessing = 2
	statusTimeLimit  = 5
)

// Languages maps canonical language names to Judge0 language ids.
var Languages = map[string]int{
	"c":          50,
	"cpp":        54,
	"go":         60,
	"java":       62,
	"javascript": 63,
	"python":     71,
}

// Config configures the Judge0 client.
type Config struct {
	BaseURL string
	// APIKey enables the RapidAPI headers when set.
	APIKey string
	// Host overrides the X-RapidAPI-Host header; defaults to the BaseURL host.
	Host           string
	PollInterval   time.Duration
	MaxWait        time.Duration
	RequestTimeout time.Duration
}

// DefaultConfig targets the public RapidAPI deployment.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://judge0-ce.p.rapidapi.com",
		PollInterval:   2 * time.Second,
		MaxWait:        30 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Client implements executor.Executor.
type Client struct {
	http   *resty.Client
	config Config
	logger *slog.Logger
}

var errPending = errors.New("judge0: submission still running")

// New creates a Judge0 client.
func New(cfg Config, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json")

	if cfg.APIKey != "" {
		host := cfg.Host
		if host == "" {
			if u, err := url.Parse(cfg.BaseURL); err == nil {
				host = u.Host
			}
		}
		httpClient.SetHeader("X-RapidAPI-Key", cfg.APIKey)
		httpClient.SetHeader("X-RapidAPI-Host", host)
	}

	return &Client{http: httpClient, config: cfg, logger: logger}
}

type submission struct {
	LanguageID int    `json:"language_id"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type submissionResult struct {
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	Status        status  `json:"status"`
	Time          *string `json:"time"`
	Memory        *int64  `json:"memory"`
	ExitCode      *int    `json:"exit_code"`
}

var encodedQuery = map[string]string{"base64_encoded": "true", "fields": "*"}

// Execute submits the program and waits for its result.
func (c *Client) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	lang := executor.NormalizeLanguage(req.Language)
	langID, ok := Languages[lang]
	if !ok {
		return nil, apperror.ValidationFailed("language", fmt.Sprintf("language %q is not supported", lang))
	}

	start := time.Now()

	token, err := c.submit(ctx, langID, req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("judge0 submission created", slog.String("token", token), slog.String("language", lang))

	res, err := c.wait(ctx, token)
	if err != nil {
		return nil, err
	}

	out, err := toExecutionResult(res)
	if err != nil {
		return nil, err
	}
	if out.Duration == 0 {
		out.Duration = time.Since(start)
	}
	return out, nil
}

func (c *Client) submit(ctx context.Context, langID int, req executor.ExecutionRequest) (string, error) {
	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(encodedQuery).
		SetBody(submission{
			LanguageID: langID,
			SourceCode: base64.StdEncoding.EncodeToString([]byte(req.Code)),
			Stdin:      base64.StdEncoding.EncodeToString([]byte(req.Stdin)),
		}).
		SetResult(&out).
		Post("/submissions")
	if err != nil {
		return "", fmt.Errorf("judge0: creating submission: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("judge0: creating submission: status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Token == "" {
		return "", errors.New("judge0: creating submission: empty token")
	}
	return out.Token, nil
}

// wait polls at a constant interval. Transport errors and 5xx/429 replies
// are retried; other client errors stop immediately.
func (c *Client) wait(ctx context.Context, token string) (*submissionResult, error) {
	poll := func() (*submissionResult, error) {
		var out submissionResult
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(encodedQuery).
			SetResult(&out).
			Get("/submissions/" + url.PathEscape(token))
		if err != nil {
			return nil, err
		}
		switch code := resp.StatusCode(); {
		case code == http.StatusTooManyRequests || code >= 500:
			return nil, fmt.Errorf("judge0: polling: status %d", code)
		case resp.IsError():
			return nil, backoff.Permanent(fmt.Errorf("judge0: polling: status %d: %s", code, resp.String()))
		}
		if out.Status.ID == statusInQueue || out.Status.ID == statusProcessing {
			return nil, errPending
		}
		return &out, nil
	}

	res, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.config.PollInterval)),
		backoff.WithMaxElapsedTime(c.config.MaxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			if !errors.Is(err, errPending) {
				c.logger.Warn("judge0 poll failed, retrying",
					slog.String("token", token),
					slog.String("error", err.Error()),
					slog.Duration("next", next),
				)
			}
		}),
	)
	if err != nil {
		if errors.Is(err, errPending) {
			return nil, fmt.Errorf("judge0: submission %s still pending after %s", token, c.config.MaxWait)
		}
		return nil, fmt.Errorf("judge0: waiting for submission %s: %w", token, err)
	}
	return res, nil
}

func toExecutionResult(res *submissionResult) (*executor.ExecutionResult, error) {
	out := &executor.ExecutionResult{
		Status:   res.Status.Description,
		TimedOut: res.Status.ID == statusTimeLimit,
	}

	var err error
	if out.Stdout, err = decode(res.Stdout); err != nil {
		return nil, fmt.Errorf("judge0: decoding stdout: %w", err)
	}
	if out.Stderr, err = decode(res.Stderr); err != nil {
		return nil, fmt.Errorf("judge0: decoding stderr: %w", err)
	}
	if out.CompileOutput, err = decode(res.CompileOutput); err != nil {
		return nil, fmt.Errorf("judge0: decoding compile output: %w", err)
	}
	if msg, err := decode(res.Message); err == nil && msg != "" && out.Stderr == "" {
		out.Stderr = msg
	}

	if res.ExitCode != nil {
		out.ExitCode = *res.ExitCode
	}
	if res.Memory != nil {
		out.MemoryKB = *res.Memory
	}
	if res.Time != nil {
		if secs, err := strconv.ParseFloat(*res.Time, 64); err == nil {
			out.Duration = time.Duration(math.Round(secs * float64(time.Second)))
		}
	}
	return out, nil
}

// decode handles Judge0's base64, which may be wrapped across lines.
func decode(s *string) (string, error) {
	if s == nil || *s == "" {
		return "", nil
	}
	clean := strings.NewReplacer("\n", "", "\r", "").Replace(*s)
	b, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
