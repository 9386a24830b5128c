// Package backend is the HTTP client the bot uses to reach the REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Bagi4-source/Mirotok/internal/store"
)

var (
	ErrNotFound = errors.New("backend: not found")
	ErrConflict = errors.New("backend: conflict")
)

// StatusError is returned for any other non-2xx answer.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: status %d: %s", e.Code, e.Message)
}

// Page is a slice of a listing together with the total count.
type Page[T any] struct {
	Count   int64 `json:"count"`
	Results []T   `json:"results"`
}

type ClientConfig struct {
	BaseURL string

	// HTTPClient is an optional custom HTTP client (for testing).
	HTTPClient *http.Client

	Timeout time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("backend: base url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{httpClient: httpClient, baseURL: base}, nil
}

// ==========================================
// ПОЛЬЗОВАТЕЛИ
// ==========================================

// Register creates the user or refreshes their name and username.
func (c *Client) Register(ctx context.Context, telegramID int64, username, name string) (*store.User, error) {
	in := map[string]any{"telegram_id": telegramID, "username": username, "name": name}
	var out store.User
	if err := c.do(ctx, http.MethodPost, "/registration/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) User(ctx context.Context, telegramID int64) (*store.User, error) {
	q := url.Values{"telegram_id": {strconv.FormatInt(telegramID, 10)}}
	var page Page[store.User]
	if err := c.do(ctx, http.MethodGet, "/registration/", q, nil, &page); err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, ErrNotFound
	}
	return &page.Results[0], nil
}

func (c *Client) CountUsers(ctx context.Context) (int64, error) {
	var page Page[store.User]
	if err := c.do(ctx, http.MethodGet, "/registration/", url.Values{"limit": {"1"}}, nil, &page); err != nil {
		return 0, err
	}
	return page.Count, nil
}

// ==========================================
// РЕЗУЛЬТАТЫ
// ==========================================

func (c *Client) PostResult(ctx context.Context, telegramID int64, score int) error {
	in := map[string]any{"telegram_id": telegramID, "result": score}
	return c.do(ctx, http.MethodPost, "/results/", nil, in, nil)
}

// Results returns the newest scores first.
func (c *Client) Results(ctx context.Context, telegramID int64, limit int) ([]store.Result, error) {
	q := url.Values{
		"telegram_id": {strconv.FormatInt(telegramID, 10)},
		"limit":       {strconv.Itoa(limit)},
	}
	var page Page[store.Result]
	if err := c.do(ctx, http.MethodGet, "/results/", q, nil, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// ==========================================
// ЗАЯВКИ
// ==========================================

func (c *Client) CreateRequest(ctx context.Context, telegramID int64, tariffID string) (*store.PaymentRequest, error) {
	in := map[string]any{"telegram_id": telegramID, "tariff_id": tariffID}
	var out store.PaymentRequest
	if err := c.do(ctx, http.MethodPost, "/request/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Requests(ctx context.Context, telegramID int64, limit, offset int) (*Page[store.PaymentRequest], error) {
	q := pageQuery(limit, offset)
	q.Set("telegram_id", strconv.FormatInt(telegramID, 10))
	var page Page[store.PaymentRequest]
	if err := c.do(ctx, http.MethodGet, "/request/", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) PendingRequests(ctx context.Context, limit, offset int) (*Page[store.PaymentRequest], error) {
	var page Page[store.PaymentRequest]
	if err := c.do(ctx, http.MethodGet, "/admin-request/", pageQuery(limit, offset), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) Request(ctx context.Context, id string) (*store.PaymentRequest, error) {
	var out store.PaymentRequest
	if err := c.do(ctx, http.MethodGet, "/admin-request/"+url.PathEscape(id)+"/", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveRequest approves or denies a pending request. ErrConflict means
// it was already resolved.
func (c *Client) ResolveRequest(ctx context.Context, id string, approve bool) (*store.Resolution, error) {
	var out store.Resolution
	in := map[string]bool{"status": approve}
	if err := c.do(ctx, http.MethodPut, "/admin-request/"+url.PathEscape(id)+"/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ==========================================
// ТАРИФЫ И ТЕКСТЫ
// ==========================================

func (c *Client) Tariffs(ctx context.Context) ([]store.Tariff, error) {
	var out []store.Tariff
	if err := c.do(ctx, http.MethodGet, "/tariffs/", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Tariff(ctx context.Context, id string) (*store.Tariff, error) {
	var out store.Tariff
	if err := c.do(ctx, http.MethodGet, "/tariffs/"+url.PathEscape(id)+"/", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTariff(ctx context.Context, days, amount int) (*store.Tariff, error) {
	in := map[string]int{"days": days, "amount": amount}
	var out store.Tariff
	if err := c.do(ctx, http.MethodPost, "/tariffs/", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTariff(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tariffs/"+url.PathEscape(id)+"/", nil, nil, nil)
}

func (c *Client) Message(ctx context.Context, tag string) (*store.Message, error) {
	var out store.Message
	if err := c.do(ctx, http.MethodGet, "/messages/", url.Values{"tag": {tag}}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PutMessage(ctx context.Context, tag, text string) error {
	in := map[string]string{"text": text}
	return c.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(tag)+"/", nil, in, nil)
}

// ==========================================
// ТРАНСПОРТ
// ==========================================

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

func parseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}
