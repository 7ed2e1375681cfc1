// Package appwrite предоставляет клиент для размещённого бэкенда:
// документные коллекции и учётные записи пользователей через REST API.
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	headerProject = "X-Appwrite-Project"
	headerKey     = "X-Appwrite-Key"
	headerSession = "X-Appwrite-Session"

	// Retry-After длиннее этого не ждём и сразу возвращаем ошибку.
	maxRetryWait = 2 * time.Second
)

// Config описывает подключение к бэкенду.
type Config struct {
	Endpoint string
	Project  string
	APIKey   string
	Database string
}

// Client инкапсулирует HTTP-взаимодействие с бэкендом.
type Client struct {
	baseURL    string
	project    string
	apiKey     string
	database   string
	httpClient *http.Client
}

// Error - ошибка, возвращённая бэкендом.
type Error struct {
	Status     int
	Code       int    `json:"code"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// NewClient создаёт клиент бэкенда. Endpoint указывается вместе с версией API,
// например https://cloud.appwrite.io/v1.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.Endpoint, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	retrying := retryablehttp.NewClient()
	retrying.RetryMax = 1
	retrying.RetryWaitMin = 100 * time.Millisecond
	retrying.RetryWaitMax = maxRetryWait
	retrying.CheckRetry = retryPolicy
	retrying.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retrying.Logger = nil
	retrying.HTTPClient.Timeout = 10 * time.Second

	return &Client{
		baseURL:    base,
		project:    cfg.Project,
		apiKey:     cfg.APIKey,
		database:   cfg.Database,
		httpClient: retrying.StandardClient(),
	}
}

// retryPolicy повторяет запрос при сетевых ошибках и при 429 с коротким
// Retry-After. Остальные ответы бэкенда возвращаются без повтора.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil {
		if resp.StatusCode != http.StatusTooManyRequests {
			return false, nil
		}
		return retryAfter(resp.Header) <= maxRetryWait, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// request - параметры одного вызова API.
type request struct {
	method  string
	path    string
	query   []string
	body    any
	session string
	// withKey добавляет серверный ключ. Запросы от имени сессии идут без него.
	withKey bool
}

// do выполняет запрос и декодирует ответ в out.
func (c *Client) do(ctx context.Context, r request, out any) (http.Header, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("backend client not configured")
	}

	url := c.baseURL + r.path
	if len(r.query) > 0 {
		url += "?" + strings.Join(r.query, "&")
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerProject, c.project)
	if r.withKey && c.apiKey != "" {
		req.Header.Set(headerKey, c.apiKey)
	}
	if r.session != "" {
		req.Header.Set(headerSession, r.session)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeError(resp)
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		return resp.Header, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return resp.Header, nil
}

func decodeError(resp *http.Response) *Error {
	apiErr := &Error{Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	apiErr.RetryAfter = retryAfter(resp.Header)
	return apiErr
}

func retryAfter(h http.Header) time.Duration {
	seconds, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
