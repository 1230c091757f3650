package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/protocol"
	"github.com/dukex/gridfn/pkg/template"
)

const HTTPRequestID = "gridfn.http_request"

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 1 << 20
)

type httpRequestArgs struct {
	URL     string            `cbor:"url"`
	Method  string            `cbor:"method"`
	Headers map[string]string `cbor:"headers"`
	Body    string            `cbor:"body"`
	Data    any               `cbor:"data"`
	// TimeoutSeconds bounds each attempt.
	TimeoutSeconds int       `cbor:"timeout"`
	Retries        retryArgs `cbor:"retries"`
}

type retryArgs struct {
	Attempts int `cbor:"attempts"`
	DelayMS  int `cbor:"delay"`
}

// HTTPError is a response with a 4xx or 5xx status.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// HTTPRequest calls an HTTP endpoint from every target. URL, body and
// header values are templates. Network failures and 5xx responses are
// reported as target failures so the client may retry the call elsewhere.
type HTTPRequest struct {
	client *http.Client
}

func NewHTTPRequest(client *http.Client) *HTTPRequest {
	return &HTTPRequest{client: client}
}

func (f *HTTPRequest) Descriptor() models.FunctionDescriptor {
	return models.FunctionDescriptor{ID: HTTPRequestID, HA: true, HasResult: true}
}

func (f *HTTPRequest) ArgsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"url"},
		"properties": map[string]any{
			"url":     map[string]any{"type": "string", "minLength": 1},
			"method":  map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string"},
			"timeout": map[string]any{"type": "integer", "minimum": 0},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 1},
					"delay":    map[string]any{"type": "integer", "minimum": 0},
				},
			},
		},
	}
}

func (f *HTTPRequest) Execute(ctx context.Context, fc *models.FunctionContext) error {
	var args httpRequestArgs

	err := decodeArgs(HTTPRequestID, fc.Args, &args)
	if err != nil {
		return err
	}

	req, err := f.render(fc, args)
	if err != nil {
		return err
	}

	attempts := max(args.Retries.Attempts, 1)

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && args.Retries.DelayMS > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", protocol.ErrTargetInvocation, ctx.Err())
			case <-time.After(time.Duration(args.Retries.DelayMS) * time.Millisecond):
			}
		}

		result, err := f.perform(ctx, req, args.TimeoutSeconds)
		if err == nil {
			return fc.Results.SendResult(result)
		}

		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
			return fmt.Errorf("http request to %s failed: %w", req.url, err)
		}
	}

	return fmt.Errorf("%w: http request to %s failed after %d attempts: %w", protocol.ErrTargetInvocation, req.url, attempts, lastErr)
}

type renderedRequest struct {
	method  string
	url     string
	body    string
	headers map[string]string
}

func (f *HTTPRequest) render(fc *models.FunctionContext, args httpRequestArgs) (renderedRequest, error) {
	req := renderedRequest{
		method:  strings.ToUpper(args.Method),
		headers: make(map[string]string, len(args.Headers)),
	}

	if req.method == "" {
		req.method = http.MethodGet
	}

	url, err := template.RenderForFunction(args.URL, fc, args.Data)
	if err != nil {
		return req, fmt.Errorf("failed to render url: %w", err)
	}

	var ok bool

	req.url, ok = url.(string)
	if !ok {
		return req, fmt.Errorf("%w for %s: url must render to a string", ErrInvalidArgs, HTTPRequestID)
	}

	if args.Body != "" {
		body, err := template.RenderForFunction(args.Body, fc, args.Data)
		if err != nil {
			return req, fmt.Errorf("failed to render body: %w", err)
		}

		req.body, err = asText(body)
		if err != nil {
			return req, err
		}
	}

	for key, value := range args.Headers {
		rendered, err := template.RenderForFunction(value, fc, args.Data)
		if err != nil {
			return req, fmt.Errorf("failed to render header %s: %w", key, err)
		}

		req.headers[key] = fmt.Sprint(rendered)
	}

	return req, nil
}

// asText turns a rendered body back into text; JSON documents are
// re-encoded.
func asText(v any) (string, error) {
	switch b := v.(type) {
	case string:
		return b, nil
	case map[string]any, []any:
		data, err := json.Marshal(b)
		if err != nil {
			return "", fmt.Errorf("failed to encode body: %w", err)
		}

		return string(data), nil
	default:
		return fmt.Sprint(b), nil
	}
}

func (f *HTTPRequest) perform(ctx context.Context, r renderedRequest, timeoutSeconds int) (map[string]any, error) {
	timeout := defaultHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range r.headers {
		req.Header.Set(key, value)
	}

	if r.body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        string(respBody),
	}

	var parsed any
	if json.Unmarshal(respBody, &parsed) == nil {
		result["json"] = parsed
	}

	return result, nil
}
