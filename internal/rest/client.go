// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rest implements the request/response half of the server protocol:
// JSON over HTTPS with bearer-token auth.
package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/relay-tui/internal/util"
	"github.com/jeranaias/relay-tui/internal/wire"
)

// Configuration constants for the REST API.
const (
	// APIPrefix is the versioned path prefix of every endpoint.
	APIPrefix = "/api/v4"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	// chunkSize is the read granularity of the streaming Do primitive.
	chunkSize = 32 * 1024

	// DefaultHistoryPageSize is the page size for history fetches.
	DefaultHistoryPageSize = 60

	// tokenHeader is the response header carrying the session token.
	tokenHeader = "Token"
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
// Shared HTTP client with connection pooling for all API requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// Error variables for common API errors.
var (
	// ErrAuthFailed indicates authentication failed (invalid or expired token).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrForbidden indicates the authenticated user lacks permission.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")
)

// APIError represents a non-2xx response from the server.
type APIError struct {
	ID      string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("api error [%s] (HTTP %d): %s", e.ID, e.Status, e.Message)
	}
	return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Message)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one server's REST API. The zero token is valid until
// Login; every later call sends the bearer header.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client for the given base URL (scheme://host[:port]).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: sharedHTTPClient,
		userAgent:  "relay-tui/0.3.0",
	}
}

// WithHTTPClient substitutes the transport, used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// SetToken installs the session token for subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// setHeaders sets the required headers for API requests.
func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
}

// logRequest logs an API request without exposing sensitive data.
// Headers and bodies are never logged; they may carry the token.
func (c *Client) logRequest(method, path string) {
	log.Printf("api request: %s %s", method, path)
}

// =============================================================================
// CORE REQUEST PRIMITIVES
// =============================================================================

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// do performs one request and decodes the JSON response into out (which may
// be nil for calls whose body is irrelevant). Returns the response headers
// for callers that need them (login reads the session token there).
func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) (http.Header, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+APIPrefix+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	c.logRequest(method, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.Header, nil
}

// Do streams a request's response body to sink in chunks. The asynchronous
// request router uses this as its transport hook: each chunk becomes one
// buffered-response callback, and the returned status closes the request.
// A non-2xx status is reported through the returned error after the error
// body has been fully read.
func (c *Client) Do(ctx context.Context, method, path string, reqBody any, sink func(chunk []byte) error) (int, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+APIPrefix+path, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	c.logRequest(method, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var total int64
	buf := make([]byte, chunkSize)
	var errBody bytes.Buffer
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > MaxResponseSize {
				return resp.StatusCode, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
			}
			if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
				if serr := sink(buf[:n]); serr != nil {
					return resp.StatusCode, serr
				}
			} else {
				errBody.Write(buf[:n])
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return resp.StatusCode, fmt.Errorf("failed to read response: %w", rerr)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, handleErrorResponse(resp.StatusCode, errBody.Bytes())
	}
	return resp.StatusCode, nil
}

// handleErrorResponse converts HTTP error responses to appropriate Go errors.
func handleErrorResponse(statusCode int, body []byte) error {
	var apiErr wire.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		e := &APIError{ID: apiErr.ID, Message: apiErr.Message, Status: statusCode}
		switch statusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuthFailed, e.Message)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrForbidden, e.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, e.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, e.Message)
		default:
			return e
		}
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return ErrAuthFailed
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &APIError{Message: string(body), Status: statusCode}
	}
}

// =============================================================================
// SESSION
// =============================================================================

// Login authenticates with login id and password. On success the session
// token from the response header is installed on the client and returned;
// the caller owns holding it (in memory only).
func (c *Client) Login(ctx context.Context, loginID, password string) (*wire.User, string, error) {
	var user wire.User
	headers, err := c.do(ctx, http.MethodPost, "/users/login", map[string]string{
		"login_id": loginID,
		"password": password,
	}, &user)
	if err != nil {
		return nil, "", err
	}
	token := headers.Get(tokenHeader)
	if token == "" {
		return nil, "", errors.New("login response missing session token")
	}
	c.token = token
	return &user, token, nil
}

// =============================================================================
// TEAMS AND CHANNELS
// =============================================================================

// ListTeams returns the teams the logged-in user belongs to.
func (c *Client) ListTeams(ctx context.Context) ([]wire.Team, error) {
	var teams []wire.Team
	_, err := c.do(ctx, http.MethodGet, "/users/me/teams", nil, &teams)
	return teams, err
}

// ListTeamChannels returns the user's channels in one team.
func (c *Client) ListTeamChannels(ctx context.Context, teamID string) ([]wire.Channel, error) {
	var channels []wire.Channel
	_, err := c.do(ctx, http.MethodGet, "/users/me/teams/"+teamID+"/channels", nil, &channels)
	return channels, err
}

// GetChannel fetches one channel's full object.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*wire.Channel, error) {
	var ch wire.Channel
	_, err := c.do(ctx, http.MethodGet, "/channels/"+channelID, nil, &ch)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetChannelMembers returns the membership records of a channel.
func (c *Client) GetChannelMembers(ctx context.Context, channelID string) ([]wire.ChannelMember, error) {
	var members []wire.ChannelMember
	_, err := c.do(ctx, http.MethodGet, "/channels/"+channelID+"/members", nil, &members)
	return members, err
}

// GetChannelMember returns one user's membership record for a channel.
func (c *Client) GetChannelMember(ctx context.Context, channelID, userID string) (*wire.ChannelMember, error) {
	var m wire.ChannelMember
	_, err := c.do(ctx, http.MethodGet, "/channels/"+channelID+"/members/"+userID, nil, &m)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// OpenDirectChannel opens (or returns) the direct channel between two users.
func (c *Client) OpenDirectChannel(ctx context.Context, userID, otherID string) (*wire.Channel, error) {
	var ch wire.Channel
	_, err := c.do(ctx, http.MethodPost, "/channels/direct", []string{userID, otherID}, &ch)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// =============================================================================
// POSTS
// =============================================================================

// HistoryBefore fetches up to perPage posts older than postID. An empty
// postID fetches the newest page.
func (c *Client) HistoryBefore(ctx context.Context, channelID, postID string, perPage int) (*wire.PostList, error) {
	if perPage <= 0 {
		perPage = DefaultHistoryPageSize
	}
	path := "/channels/" + channelID + "/posts?per_page=" + util.IntToString(perPage)
	if postID != "" {
		path += "&before=" + postID
	}
	var list wire.PostList
	_, err := c.do(ctx, http.MethodGet, path, nil, &list)
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// HistoryAfter fetches up to perPage posts newer than postID, oldest first.
// This is the resync primitive: it fills the gap left by an outage.
func (c *Client) HistoryAfter(ctx context.Context, channelID, postID string, perPage int) (*wire.PostList, error) {
	if perPage <= 0 {
		perPage = DefaultHistoryPageSize
	}
	path := "/channels/" + channelID + "/posts?per_page=" + util.IntToString(perPage) + "&after=" + postID
	var list wire.PostList
	_, err := c.do(ctx, http.MethodGet, path, nil, &list)
	if err != nil {
		return nil, err
	}
	return &list, nil
}

// CreatePost sends a new post, optionally as a thread reply.
func (c *Client) CreatePost(ctx context.Context, channelID, message, rootID string) (*wire.Post, error) {
	var p wire.Post
	_, err := c.do(ctx, http.MethodPost, "/posts", map[string]string{
		"channel_id": channelID,
		"message":    message,
		"root_id":    rootID,
	}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/posts/"+postID, nil, nil)
	return err
}

// AddReaction attaches a (user, emoji) reaction to a post.
func (c *Client) AddReaction(ctx context.Context, userID, postID, emojiName string) error {
	_, err := c.do(ctx, http.MethodPost, "/reactions", wire.Reaction{
		UserID:    userID,
		PostID:    postID,
		EmojiName: emojiName,
	}, nil)
	return err
}

// RemoveReaction removes a (user, emoji) reaction from a post.
func (c *Client) RemoveReaction(ctx context.Context, userID, postID, emojiName string) error {
	_, err := c.do(ctx, http.MethodDelete,
		"/users/"+userID+"/posts/"+postID+"/reactions/"+emojiName, nil, nil)
	return err
}

// =============================================================================
// USERS, EMOJI AND PREFERENCES
// =============================================================================

// GetUser fetches one user by id.
func (c *Client) GetUser(ctx context.Context, userID string) (*wire.User, error) {
	var u wire.User
	_, err := c.do(ctx, http.MethodGet, "/users/"+userID, nil, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUsersByIDs fetches several users in one call.
func (c *Client) GetUsersByIDs(ctx context.Context, ids []string) ([]wire.User, error) {
	var users []wire.User
	_, err := c.do(ctx, http.MethodPost, "/users/ids", ids, &users)
	return users, err
}

// GetCustomEmoji resolves a custom emoji by name.
func (c *Client) GetCustomEmoji(ctx context.Context, name string) (*wire.Emoji, error) {
	var e wire.Emoji
	_, err := c.do(ctx, http.MethodGet, "/emoji/name/"+name, nil, &e)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetPreferences returns the user's preference records.
func (c *Client) GetPreferences(ctx context.Context, userID string) ([]wire.Preference, error) {
	var prefs []wire.Preference
	_, err := c.do(ctx, http.MethodGet, "/users/"+userID+"/preferences", nil, &prefs)
	return prefs, err
}

// SetPreferences stores preference records (channel visibility lives here).
func (c *Client) SetPreferences(ctx context.Context, userID string, prefs []wire.Preference) error {
	_, err := c.do(ctx, http.MethodPut, "/users/"+userID+"/preferences", prefs, nil)
	return err
}

// MarkViewed advances the server-side read cursor for a channel.
func (c *Client) MarkViewed(ctx context.Context, channelID string) error {
	_, err := c.do(ctx, http.MethodPost, "/channels/members/me/view", map[string]string{
		"channel_id": channelID,
	}, nil)
	return err
}
