package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mcoot/tagmatch/internal/api/apierr"
	"github.com/mcoot/tagmatch/internal/api/request"
	"github.com/mcoot/tagmatch/internal/api/response"
	"github.com/mcoot/tagmatch/internal/model"
)

// Client is an HTTP client for the API
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a new API client
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetToken updates the client's token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the session token in use
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// APIError is an error response from the API
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an API error
type ErrorResponse struct {
	Error APIError `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

var codeErrors = map[string]error{
	apierr.CodeUnauthorized:        model.ErrAuthenticationFailure,
	apierr.CodeInvalidCredentials:  model.ErrAuthenticationFailure,
	apierr.CodeNotHost:             model.ErrNotHost,
	apierr.CodeInvalidJoinCode:     model.ErrInvalidJoinCode,
	apierr.CodeAllocationNotFound:  model.ErrAllocationNotFound,
	apierr.CodeEntryNotFound:       model.ErrEntryNotFound,
	apierr.CodeEntryFull:           model.ErrEntryFull,
	apierr.CodeNoActiveSession:     model.ErrNoActiveSession,
	apierr.CodeMatchInProgress:     model.ErrTimerRunning,
	apierr.CodeParticipantNotFound: model.ErrParticipantNotFound,
}

// Unwrap maps the error code to the matching sentinel so callers can use errors.Is
func (e *APIError) Unwrap() error {
	return codeErrors[e.Code]
}

// Do performs an HTTP request, decoding a JSON result when result is non-nil
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Code != "" {
			errResp.Error.Status = resp.StatusCode
			return &errResp.Error
		}
		return &APIError{
			Status:  resp.StatusCode,
			Code:    http.StatusText(resp.StatusCode),
			Message: strings.TrimSpace(string(respBody)),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, path string, result any) error {
	return c.Do(ctx, http.MethodGet, path, nil, result)
}

// Post performs a POST request
func (c *Client) Post(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPost, path, body, result)
}

// Health checks the server is up
func (c *Client) Health(ctx context.Context) error {
	return c.Get(ctx, "/api/v1/health", nil)
}

// GuestLogin creates a guest player and adopts its session token
func (c *Client) GuestLogin(ctx context.Context, displayName string) (*response.AuthResponse, error) {
	return c.authenticate(ctx, "/api/v1/players/guest", request.CreateGuestRequest{DisplayName: displayName})
}

// Register creates a registered player and adopts its session token
func (c *Client) Register(ctx context.Context, username, password, displayName string) (*response.AuthResponse, error) {
	return c.authenticate(ctx, "/api/v1/players/register", request.RegisterRequest{
		Username:    username,
		Password:    password,
		DisplayName: displayName,
	})
}

// Login signs in a registered player and adopts its session token
func (c *Client) Login(ctx context.Context, username, password string) (*response.AuthResponse, error) {
	return c.authenticate(ctx, "/api/v1/players/login", request.LoginRequest{
		Username: username,
		Password: password,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*response.AuthResponse, error) {
	var resp response.AuthResponse
	if err := c.Post(ctx, path, body, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.SessionToken)
	return &resp, nil
}

// Me returns the signed-in player
func (c *Client) Me(ctx context.Context) (*response.Player, error) {
	var resp response.Player
	if err := c.Get(ctx, "/api/v1/players/me", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JoinAllocation resolves a join code to a relay allocation
func (c *Client) JoinAllocation(ctx context.Context, joinCode string) (*response.Allocation, error) {
	var resp response.Allocation
	if err := c.Get(ctx, "/api/v1/relay/allocations/join/"+url.PathEscape(joinCode), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListEntries lists joinable matches
func (c *Client) ListEntries(ctx context.Context) ([]response.Entry, error) {
	var resp response.EntryList
	if err := c.Get(ctx, "/api/v1/registry/entries", &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// JoinEntry becomes a member of a registry entry, revealing member-only data
func (c *Client) JoinEntry(ctx context.Context, entryID string) (*response.Entry, error) {
	var resp response.Entry
	if err := c.Post(ctx, "/api/v1/registry/entries/"+url.PathEscape(entryID)+"/join", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MatchState returns the hosted match state
func (c *Client) MatchState(ctx context.Context) (*response.MatchState, error) {
	var resp response.MatchState
	if err := c.Get(ctx, "/api/v1/match", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartMatch starts the match clock. Host only.
func (c *Client) StartMatch(ctx context.Context) (*response.MatchState, error) {
	var resp response.MatchState
	if err := c.Post(ctx, "/api/v1/match/start", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Leaderboard returns the current standings
func (c *Client) Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	var resp response.Leaderboard
	if err := c.Get(ctx, "/api/v1/match/leaderboard", &resp); err != nil {
		return nil, err
	}
	return resp.Standings, nil
}

// InjectContact reports a contact on behalf of two participants. Host only.
func (c *Client) InjectContact(ctx context.Context, initiator, target model.ConnectionID) (bool, error) {
	var resp response.ContactResult
	body := request.ContactRequest{InitiatorID: uint64(initiator), TargetID: uint64(target)}
	if err := c.Post(ctx, "/api/v1/match/contacts", body, &resp); err != nil {
		return false, err
	}
	return resp.Transferred, nil
}
