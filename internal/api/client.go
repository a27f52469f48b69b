package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"usergrid/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Result mirrors the console backend's JSON envelope:
// code 2000 on success, -1 on error, field-level validation detail in errors.
type Result[T any] struct {
	Code    int                     `json:"code"`
	Type    string                  `json:"type"`
	Message string                  `json:"message"`
	Result  T                       `json:"result"`
	Errors  domain.ValidationErrors `json:"errors,omitempty"`
}

const resultSuccess = 2000

// ListUsersQuery are the composable inputs of one collection query.
type ListUsersQuery struct {
	Page     int
	PageSize int
	Ordering string // field name, "-" prefix for descending
	Search   string
	Role     domain.Role // empty = all roles
}

// CreateUserRequest carries the fields a new account is registered with.
// user_account is only settable here; it is immutable afterwards.
type CreateUserRequest struct {
	UserAccount string      `json:"user_account"`
	Password    string      `json:"password"`
	FirstName   string      `json:"first_name,omitempty"`
	LastName    string      `json:"last_name,omitempty"`
	Nickname    string      `json:"nickname,omitempty"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	Company     string      `json:"company,omitempty"`
	Role        domain.Role `json:"role"`
	IsActive    bool        `json:"is_active"`
}

// UserPage is one authoritative page plus the filtered total.
type UserPage struct {
	Items []*domain.User `json:"items"`
	Total int            `json:"total"`
}

// Client talks to the console's user CRUD endpoints.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient builds a client for the given API base URL (e.g. "http://localhost:8080").
func NewClient(baseURL string, logger *zap.Logger) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: c, logger: logger}
}

// ListUsers issues one paginated/sorted/filtered/searched query.
func (c *Client) ListUsers(ctx context.Context, q ListUsersQuery) (*UserPage, error) {
	params := map[string]string{
		"page": strconv.Itoa(q.Page),
		"size": strconv.Itoa(q.PageSize),
	}
	if q.Ordering != "" {
		params["ordering"] = q.Ordering
	}
	if q.Search != "" {
		params["search"] = q.Search
	}
	if q.Role != "" {
		params["role"] = string(q.Role)
	}

	var envelope Result[UserPage]
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&envelope).
		SetError(&envelope).
		Get("/admin/api/v1/users")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if resp.IsError() || envelope.Code != resultSuccess {
		return nil, fmt.Errorf("list users: %s", failureMessage(resp.StatusCode(), envelope.Message))
	}
	return &envelope.Result, nil
}

// GetUser fetches the canonical copy of one row.
func (c *Client) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var envelope Result[*domain.User]
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&envelope).
		SetError(&envelope).
		Get("/admin/api/v1/users/" + id)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	if resp.IsError() || envelope.Code != resultSuccess {
		return nil, fmt.Errorf("get user %s: %s", id, failureMessage(resp.StatusCode(), envelope.Message))
	}
	if envelope.Result == nil {
		return nil, fmt.Errorf("get user %s: empty result", id)
	}
	return envelope.Result, nil
}

// CreateUser registers a new account. Rejections come back as
// domain.ValidationErrors, same as UpdateUser.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	var envelope Result[*domain.User]
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&envelope).
		SetError(&envelope).
		Post("/admin/api/v1/users")
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if resp.IsError() || envelope.Code != resultSuccess {
		if !envelope.Errors.Empty() {
			return nil, envelope.Errors
		}
		return nil, fmt.Errorf("create user: %s", failureMessage(resp.StatusCode(), envelope.Message))
	}
	if envelope.Result == nil {
		return nil, fmt.Errorf("create user: empty result")
	}
	return envelope.Result, nil
}

// UpdateUser submits a partial update. A rejected draft comes back as
// domain.ValidationErrors so the caller can map messages onto inputs;
// any other failure is an opaque transport/server error.
func (c *Client) UpdateUser(ctx context.Context, id string, draft domain.UserDraft) (*domain.User, error) {
	var envelope Result[*domain.User]
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(draft).
		SetResult(&envelope).
		SetError(&envelope).
		Patch("/admin/api/v1/users/" + id)
	if err != nil {
		return nil, fmt.Errorf("update user %s: %w", id, err)
	}
	if resp.IsError() || envelope.Code != resultSuccess {
		if !envelope.Errors.Empty() {
			return nil, envelope.Errors
		}
		return nil, fmt.Errorf("update user %s: %s", id, failureMessage(resp.StatusCode(), envelope.Message))
	}
	if envelope.Result == nil {
		return nil, fmt.Errorf("update user %s: empty result", id)
	}
	return envelope.Result, nil
}

// DeleteUser removes one row by id.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	var envelope Result[any]
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&envelope).
		SetError(&envelope).
		Delete("/admin/api/v1/users/" + id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if resp.IsError() || envelope.Code != resultSuccess {
		return fmt.Errorf("delete user %s: %s", id, failureMessage(resp.StatusCode(), envelope.Message))
	}
	return nil
}

func failureMessage(status int, message string) string {
	if message != "" {
		return message
	}
	return http.StatusText(status)
}
