package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/orbitsocial/backend/internal/directory"
	"github.com/orbitsocial/backend/internal/relationships"
)

// ClientConfig carries the settings for the HTTP API client.
type ClientConfig struct {
	BaseURL string
	Token   string
	// MutationsPerMinute caps outbound mutation calls. Zero disables limiting.
	MutationsPerMinute int
	HTTPClient         *http.Client
	Logger             *slog.Logger
}

// Client talks to the authoritative relationship store over its REST API. It
// implements the engine's service interfaces and the directory service, and
// maps HTTP responses onto the engine's error taxonomy.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *callLimiter
	logger  *slog.Logger
}

// NewClient constructs the API client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *callLimiter
	if cfg.MutationsPerMinute > 0 {
		limiter = newCallLimiter(cfg.MutationsPerMinute, time.Minute, 5, 5*time.Minute)
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}
}

type pageResponse struct {
	Items      []string `json:"items"`
	NextCursor string   `json:"nextCursor"`
}

type profileResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
	FriendCount int    `json:"friendCount"`
	EventCount  int    `json:"eventCount"`
}

type directoryResponse struct {
	Items      []profileResponse `json:"items"`
	NextCursor string            `json:"nextCursor"`
}

// SendRequest creates a pending friend request toward target.
func (c *Client) SendRequest(ctx context.Context, target relationships.UserID) error {
	return c.mutate(ctx, http.MethodPost, "/api/v1/relationships/requests", map[string]string{"target": string(target)})
}

// AcceptRequest accepts the pending request from requester.
func (c *Client) AcceptRequest(ctx context.Context, requester relationships.UserID) error {
	return c.mutate(ctx, http.MethodPost, fmt.Sprintf("/api/v1/relationships/requests/%s/accept", url.PathEscape(string(requester))), nil)
}

// DeclineRequest declines the pending request from requester.
func (c *Client) DeclineRequest(ctx context.Context, requester relationships.UserID) error {
	return c.mutate(ctx, http.MethodPost, fmt.Sprintf("/api/v1/relationships/requests/%s/decline", url.PathEscape(string(requester))), nil)
}

// CancelRequest withdraws the pending request toward target.
func (c *Client) CancelRequest(ctx context.Context, target relationships.UserID) error {
	return c.mutate(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/relationships/requests/%s", url.PathEscape(string(target))), nil)
}

// RemoveFriend ends the friendship with friend.
func (c *Client) RemoveFriend(ctx context.Context, friend relationships.UserID) error {
	return c.mutate(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/relationships/friends/%s", url.PathEscape(string(friend))), nil)
}

// ListFriends returns one page of confirmed friends.
func (c *Client) ListFriends(ctx context.Context, cursor string, limit int) (relationships.Page, error) {
	return c.listIDs(ctx, "/api/v1/relationships/friends", cursor, limit)
}

// ListIncoming returns one page of incoming pending requests.
func (c *Client) ListIncoming(ctx context.Context, cursor string, limit int) (relationships.Page, error) {
	return c.listIDs(ctx, "/api/v1/relationships/incoming", cursor, limit)
}

// ListOutgoing returns one page of outgoing pending requests.
func (c *Client) ListOutgoing(ctx context.Context, cursor string, limit int) (relationships.Page, error) {
	return c.listIDs(ctx, "/api/v1/relationships/outgoing", cursor, limit)
}

// ListUsers returns one page of the unfiltered user directory.
func (c *Client) ListUsers(ctx context.Context, cursor string, limit int) (directory.Page, error) {
	return c.listProfiles(ctx, "/api/v1/users", "", cursor, limit)
}

// SearchUsers returns one page of directory entries matching query.
func (c *Client) SearchUsers(ctx context.Context, query, cursor string, limit int) (directory.Page, error) {
	return c.listProfiles(ctx, "/api/v1/users/search", query, cursor, limit)
}

func (c *Client) mutate(ctx context.Context, method, path string, body any) error {
	if c.limiter != nil {
		if err := c.limiter.wait(ctx, path); err != nil {
			return &relationships.NetworkError{Op: method + " " + path, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	resp, err := c.do(ctx, method, path, reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return c.checkStatus(method, path, resp.StatusCode)
}

func (c *Client) listIDs(ctx context.Context, path, cursor string, limit int) (relationships.Page, error) {
	resp, err := c.do(ctx, http.MethodGet, pagedPath(path, "", cursor, limit), nil)
	if err != nil {
		return relationships.Page{}, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(http.MethodGet, path, resp.StatusCode); err != nil {
		return relationships.Page{}, err
	}

	var decoded pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return relationships.Page{}, fmt.Errorf("decode %s response: %w", path, err)
	}

	page := relationships.Page{NextCursor: decoded.NextCursor}
	for _, id := range decoded.Items {
		page.IDs = append(page.IDs, relationships.UserID(id))
	}
	return page, nil
}

func (c *Client) listProfiles(ctx context.Context, path, query, cursor string, limit int) (directory.Page, error) {
	resp, err := c.do(ctx, http.MethodGet, pagedPath(path, query, cursor, limit), nil)
	if err != nil {
		return directory.Page{}, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(http.MethodGet, path, resp.StatusCode); err != nil {
		return directory.Page{}, err
	}

	var decoded directoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return directory.Page{}, fmt.Errorf("decode %s response: %w", path, err)
	}

	page := directory.Page{NextCursor: decoded.NextCursor}
	for _, item := range decoded.Items {
		page.Items = append(page.Items, directory.Profile{
			ID:          relationships.UserID(item.ID),
			DisplayName: item.DisplayName,
			AvatarRef:   item.AvatarRef,
			FriendCount: item.FriendCount,
			EventCount:  item.EventCount,
		})
	}
	return page, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &relationships.NetworkError{Op: method + " " + path, Err: err}
	}
	return resp, nil
}

// checkStatus maps HTTP status codes onto the engine's error taxonomy: 409 is
// a benign conflict, 401/403 require re-authentication, and server-side
// failures are retryable network errors.
func (c *Client) checkStatus(method, path string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusConflict:
		return relationships.ErrConflict
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return relationships.ErrAuth
	case status >= 500:
		return &relationships.NetworkError{
			Op:  method + " " + path,
			Err: fmt.Errorf("server returned status %d", status),
		}
	default:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, status)
	}
}

func pagedPath(path, query, cursor string, limit int) string {
	values := url.Values{}
	if query != "" {
		values.Set("q", query)
	}
	if cursor != "" {
		values.Set("cursor", cursor)
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if encoded := values.Encode(); encoded != "" {
		return path + "?" + encoded
	}
	return path
}

var _ relationships.Service = (*Client)(nil)
var _ directory.Service = (*Client)(nil)
