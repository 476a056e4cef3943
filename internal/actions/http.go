package actions

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericvicenti/botical-sub000/pkg/schema"
)

// HTTPConfig configures the HTTP actions.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

// Param helpers used by all action files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func intParam(m map[string]any, key string, defaultVal int) int {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	default:
		return defaultVal
	}
}

// --- JSON Schemas ---

const httpRequestInputSchema = `{
  "type": "object",
  "properties": {
    "method": {"type": "string", "default": "GET"},
    "url": {"type": "string"},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "body": {},
    "body_encoding": {"type": "string", "enum": ["json","form","text","raw"], "default": "json"},
    "auth": {
      "type": "object",
      "properties": {
        "type": {"type": "string", "enum": ["bearer","basic","api_key"]},
        "token": {"type": "string"},
        "username": {"type": "string"},
        "password": {"type": "string"},
        "header_name": {"type": "string"},
        "header_value": {"type": "string"}
      }
    },
    "timeout": {"type": "string"},
    "follow_redirects": {"type": "boolean", "default": true},
    "max_redirects": {"type": "integer", "default": 10},
    "tls_skip_verify": {"type": "boolean", "default": false},
    "fail_on_error_status": {"type": "boolean", "default": false}
  },
  "required": ["url"]
}`

const httpRequestOutputSchema = `{
  "type": "object",
  "properties": {
    "status_code": {"type": "integer"},
    "status": {"type": "string"},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "body": {},
    "content_type": {"type": "string"},
    "duration_ms": {"type": "integer"}
  }
}`

// --- HTTPRequestAction ---

// HTTPRequestAction implements the "http.request" action.
type HTTPRequestAction struct {
	config HTTPConfig
}

// NewHTTPRequestAction creates a new http.request action.
func NewHTTPRequestAction(cfg HTTPConfig) *HTTPRequestAction {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultHTTPTimeout
	}
	return &HTTPRequestAction{config: cfg}
}

func (a *HTTPRequestAction) Name() string { return "http.request" }

func (a *HTTPRequestAction) Schema() ActionSchema {
	return ActionSchema{
		Description:  "Execute an HTTP request with full control over method, headers, body, auth, and redirects.",
		InputSchema:  json.RawMessage(httpRequestInputSchema),
		OutputSchema: json.RawMessage(httpRequestOutputSchema),
	}
}

func (a *HTTPRequestAction) Validate(args map[string]any) error {
	rawURL := stringParam(args, "url", "")
	if rawURL == "" {
		return schema.NewError(schema.ErrCodeValidation, "http.request: missing required param 'url'")
	}
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return schema.NewError(schema.ErrCodeValidation, fmt.Sprintf("http.request: invalid url %q", rawURL))
	}
	return nil
}

func (a *HTTPRequestAction) Execute(ctx context.Context, input ActionInput) (*ActionResult, error) {
	args := input.Args
	if args == nil {
		args = map[string]any{}
	}

	if err := a.Validate(args); err != nil {
		return nil, err
	}

	method := strings.ToUpper(stringParam(args, "method", "GET"))
	rawURL := stringParam(args, "url", "")
	bodyEncoding := stringParam(args, "body_encoding", "json")
	followRedirects := boolParam(args, "follow_redirects", true)
	maxRedirects := intParam(args, "max_redirects", 10)
	tlsSkipVerify := boolParam(args, "tls_skip_verify", false)
	failOnErrorStatus := boolParam(args, "fail_on_error_status", false)

	timeout := a.config.DefaultTimeout
	if ts := stringParam(args, "timeout", ""); ts != "" {
		if d, err := time.ParseDuration(ts); err == nil {
			timeout = d
		}
	}

	// Build request body
	var bodyReader io.Reader
	var contentType string
	if rawBody, ok := args["body"]; ok && rawBody != nil {
		switch bodyEncoding {
		case "form":
			formData, ok := rawBody.(map[string]any)
			if ok {
				vals := url.Values{}
				for k, v := range formData {
					vals.Set(k, fmt.Sprintf("%v", v))
				}
				bodyReader = strings.NewReader(vals.Encode())
				contentType = "application/x-www-form-urlencoded"
			}
		case "text":
			bodyReader = strings.NewReader(fmt.Sprintf("%v", rawBody))
			contentType = "text/plain"
		case "raw":
			bodyReader = strings.NewReader(fmt.Sprintf("%v", rawBody))
		default: // json
			b, err := json.Marshal(rawBody)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeExecution, "http.request: failed to marshal body as JSON").WithCause(err)
			}
			bodyReader = strings.NewReader(string(b))
			contentType = "application/json"
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http.request: failed to create request").WithCause(err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if hdrs, ok := args["headers"]; ok {
		if hm, ok := hdrs.(map[string]any); ok {
			for k, v := range hm {
				req.Header.Set(k, fmt.Sprintf("%v", v))
			}
		}
	}

	if authRaw, ok := args["auth"]; ok {
		if auth, ok := authRaw.(map[string]any); ok {
			switch stringParam(auth, "type", "") {
			case "bearer":
				req.Header.Set("Authorization", "Bearer "+stringParam(auth, "token", ""))
			case "basic":
				req.SetBasicAuth(stringParam(auth, "username", ""), stringParam(auth, "password", ""))
			case "api_key":
				headerName := stringParam(auth, "header_name", "")
				if headerName != "" {
					req.Header.Set(headerName, stringParam(auth, "header_value", ""))
				}
			}
		}
	}

	// Always create a new client to avoid mutating shared state.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := &http.Client{Transport: transport}

	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if maxRedirects > 0 {
		limit := maxRedirects
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http.request: request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	limitedReader := io.LimitReader(resp.Body, a.config.MaxResponseBody)
	bodyBytes, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http.request: failed to read response body").WithCause(err)
	}

	respContentType := resp.Header.Get("Content-Type")
	var parsedBody any
	if len(bodyBytes) == 0 {
		parsedBody = nil
	} else if strings.Contains(respContentType, "application/json") {
		var jsonBody any
		if err := json.Unmarshal(bodyBytes, &jsonBody); err == nil {
			parsedBody = jsonBody
		} else {
			parsedBody = string(bodyBytes)
		}
	} else {
		parsedBody = string(bodyBytes)
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	result := map[string]any{
		"status_code":  resp.StatusCode,
		"status":       resp.Status,
		"headers":      respHeaders,
		"body":         parsedBody,
		"content_type": respContentType,
		"duration_ms":  durationMs,
	}

	if failOnErrorStatus && resp.StatusCode >= 400 {
		code := schema.ErrCodeNonRetryable
		if resp.StatusCode >= 500 {
			code = schema.ErrCodeExecution
		}
		return nil, schema.NewErrorf(code, "http.request: server returned %d", resp.StatusCode).
			WithDetails(result)
	}

	return Success(result), nil
}

// --- HTTPGetAction ---

// HTTPGetAction implements the "http.get" convenience action.
type HTTPGetAction struct {
	inner *HTTPRequestAction
}

// NewHTTPGetAction creates a new http.get action.
func NewHTTPGetAction(cfg HTTPConfig) *HTTPGetAction {
	return &HTTPGetAction{inner: NewHTTPRequestAction(cfg)}
}

func (a *HTTPGetAction) Name() string { return "http.get" }

func (a *HTTPGetAction) Schema() ActionSchema {
	return ActionSchema{
		Description:  "Convenience action for HTTP GET requests.",
		InputSchema:  json.RawMessage(httpRequestInputSchema),
		OutputSchema: json.RawMessage(httpRequestOutputSchema),
	}
}

func (a *HTTPGetAction) Validate(args map[string]any) error {
	return a.inner.Validate(args)
}

func (a *HTTPGetAction) Execute(ctx context.Context, input ActionInput) (*ActionResult, error) {
	if input.Args == nil {
		input.Args = map[string]any{}
	}
	input.Args["method"] = "GET"
	return a.inner.Execute(ctx, input)
}

// --- HTTPPostAction ---

// HTTPPostAction implements the "http.post" convenience action.
type HTTPPostAction struct {
	inner *HTTPRequestAction
}

// NewHTTPPostAction creates a new http.post action.
func NewHTTPPostAction(cfg HTTPConfig) *HTTPPostAction {
	return &HTTPPostAction{inner: NewHTTPRequestAction(cfg)}
}

func (a *HTTPPostAction) Name() string { return "http.post" }

func (a *HTTPPostAction) Schema() ActionSchema {
	return ActionSchema{
		Description:  "Convenience action for HTTP POST requests.",
		InputSchema:  json.RawMessage(httpRequestInputSchema),
		OutputSchema: json.RawMessage(httpRequestOutputSchema),
	}
}

func (a *HTTPPostAction) Validate(args map[string]any) error {
	return a.inner.Validate(args)
}

func (a *HTTPPostAction) Execute(ctx context.Context, input ActionInput) (*ActionResult, error) {
	if input.Args == nil {
		input.Args = map[string]any{}
	}
	input.Args["method"] = "POST"
	return a.inner.Execute(ctx, input)
}
