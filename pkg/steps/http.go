package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
	"github.com/SuryanshuBanerjee/bonesaw/pkg/registry"
	"github.com/cenkalti/backoff/v4"
)

const (
	defaultHTTPTimeout     = 30
	defaultDownloadTimeout = 60
)

// requestConfig holds the settings shared by every HTTP step.
type requestConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout int               `yaml:"timeout"` // seconds
	Retries int               `yaml:"retries"`
}

func (c requestConfig) check() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.Timeout)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	return nil
}

func (c requestConfig) client() *http.Client {
	return &http.Client{Timeout: time.Duration(c.Timeout) * time.Second}
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// do sends a request built by newReq and hands a successful response to
// handle. Network failures, 429 and 5xx responses are retried up to
// cfg.Retries times with exponential backoff; other statuses fail at once.
func do(ctx context.Context, cfg requestConfig, newReq func(context.Context) (*http.Request, error), handle func(*http.Response) error) error {
	client := cfg.client()

	op := func() error {
		req, err := newReq(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			_, _ = io.Copy(io.Discard, resp.Body)
			statusErr := &StatusError{Method: req.Method, URL: req.URL.String(), Code: resp.StatusCode}
			if retryable(resp.StatusCode) {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}
		return handle(resp)
	}

	if cfg.Retries == 0 {
		err := op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.Retries)), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		slog.Warn("request failed, retrying", "error", err, "wait", wait)
	})
}

func readBody(dst *string) func(*http.Response) error {
	return func(resp *http.Response) error {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		*dst = string(body)
		return nil
	}
}

type httpGetStep struct{ cfg requestConfig }

func newHTTPGet(params map[string]any) (pipeline.Step, error) {
	cfg := requestConfig{Timeout: defaultHTTPTimeout}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &httpGetStep{cfg: cfg}, nil
}

func (s *httpGetStep) Run(ctx context.Context, data any, pc pipeline.Context) (any, error) {
	url, err := pathFrom(s.cfg.URL, data, "url")
	if err != nil {
		return nil, err
	}

	slog.Info("GET", "url", url)

	var body string
	var status int
	err = do(ctx, s.cfg, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}, func(resp *http.Response) error {
		status = resp.StatusCode
		return readBody(&body)(resp)
	})
	if err != nil {
		return nil, err
	}

	pc["status_code"] = status
	pc["response_size"] = len(body)
	pc["url"] = url

	slog.Info("response", "url", url, "status", status, "bytes", len(body))
	return body, nil
}

// postJSON sends payload as a JSON body and returns the status and body text.
func postJSON(ctx context.Context, cfg requestConfig, payload any) (int, string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, "", fmt.Errorf("encoding request body: %w", err)
	}

	var body string
	var status int
	err = do(ctx, cfg, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, func(resp *http.Response) error {
		status = resp.StatusCode
		return readBody(&body)(resp)
	})
	return status, body, err
}

type httpPostConfig struct {
	requestConfig `yaml:",inline"`
	Data          any `yaml:"data"`
}

type httpPostStep struct{ cfg httpPostConfig }

func newHTTPPost(params map[string]any) (pipeline.Step, error) {
	cfg := httpPostConfig{requestConfig: requestConfig{Timeout: defaultHTTPTimeout}}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, errors.New("url is required")
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &httpPostStep{cfg: cfg}, nil
}

func (s *httpPostStep) Run(ctx context.Context, data any, pc pipeline.Context) (any, error) {
	payload := s.cfg.Data
	if payload == nil {
		payload = data
	}

	slog.Info("POST", "url", s.cfg.URL)
	status, body, err := postJSON(ctx, s.cfg.requestConfig, payload)
	if err != nil {
		return nil, err
	}

	pc["status_code"] = status
	pc["response_size"] = len(body)
	pc["url"] = s.cfg.URL

	slog.Info("response", "url", s.cfg.URL, "status", status, "bytes", len(body))
	return body, nil
}

type webhookConfig struct {
	requestConfig `yaml:",inline"`
	Payload       any `yaml:"payload"`
}

type webhookStep struct{ cfg webhookConfig }

func newWebhook(params map[string]any) (pipeline.Step, error) {
	cfg := webhookConfig{requestConfig: requestConfig{Timeout: defaultHTTPTimeout}}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, errors.New("url is required")
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &webhookStep{cfg: cfg}, nil
}

func (s *webhookStep) Run(ctx context.Context, data any, pc pipeline.Context) (any, error) {
	payload := s.cfg.Payload
	if payload == nil {
		payload = data
	}

	slog.Info("sending webhook", "url", s.cfg.URL)
	status, body, err := postJSON(ctx, s.cfg.requestConfig, payload)
	if err != nil {
		return nil, err
	}

	pc["status_code"] = status
	pc["webhook_url"] = s.cfg.URL

	slog.Info("webhook sent", "url", s.cfg.URL, "status", status)
	return body, nil
}

type downloadConfig struct {
	requestConfig `yaml:",inline"`
	OutputPath    string `yaml:"output_path"`
}

type downloadStep struct{ cfg downloadConfig }

func newDownload(params map[string]any) (pipeline.Step, error) {
	cfg := downloadConfig{requestConfig: requestConfig{Timeout: defaultDownloadTimeout}}
	if err := registry.Decode(params, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &downloadStep{cfg: cfg}, nil
}

func (s *downloadStep) Run(ctx context.Context, data any, pc pipeline.Context) (any, error) {
	url, err := pathFrom(s.cfg.URL, data, "url")
	if err != nil {
		return nil, err
	}

	out := s.cfg.OutputPath
	if out == "" {
		out = downloadName(url)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	slog.Info("downloading", "url", url, "path", out)

	var size int64
	err = do(ctx, s.cfg.requestConfig, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}, func(resp *http.Response) error {
		f, err := os.Create(out)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating %s: %w", out, err))
		}
		n, copyErr := io.Copy(f, resp.Body)
		if closeErr := f.Close(); copyErr == nil {
			copyErr = closeErr
		}
		if copyErr != nil {
			return fmt.Errorf("writing %s: %w", out, copyErr)
		}
		size = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	pc["file_size"] = int(size)
	pc["download_url"] = url
	pc["download_path"] = out

	slog.Info("downloaded", "url", url, "path", out, "bytes", size)
	return out, nil
}

// downloadName derives a local file name from the last URL path segment.
func downloadName(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil || strings.HasSuffix(u.Path, "/") {
		return "download"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "download"
	}
	return name
}
