package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"usergrid/internal/domain"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okEnvelope(result any) []byte {
	b, _ := json.Marshal(map[string]any{
		"code": 2000, "type": "success", "message": "ok", "result": result,
	})
	return b
}

func TestListUsers_SendsComposedQuery(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/admin/api/v1/users", r.URL.Path)
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(okEnvelope(UserPage{
			Items: []*domain.User{{ID: "u1", UserAccount: "alice", Role: domain.RoleClient}},
			Total: 1,
		}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	page, err := c.ListUsers(context.Background(), ListUsersQuery{
		Page:     2,
		PageSize: 25,
		Ordering: "-date_joined",
		Search:   "ali",
		Role:     domain.RoleClient,
	})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	require.Equal(t, "u1", page.Items[0].ID)

	require.Equal(t, map[string]string{
		"page":     "2",
		"size":     "25",
		"ordering": "-date_joined",
		"search":   "ali",
		"role":     "CLIENT",
	}, gotQuery)
}

func TestListUsers_OmitsEmptyFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.False(t, q.Has("search"))
		require.False(t, q.Has("role"))
		require.False(t, q.Has("ordering"))
		_, _ = w.Write(okEnvelope(UserPage{}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.ListUsers(context.Background(), ListUsersQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
}

func TestListUsers_EnvelopeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal(map[string]any{"code": -1, "type": "error", "message": "boom"})
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.ListUsers(context.Background(), ListUsersQuery{Page: 1, PageSize: 10})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestCreateUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/admin/api/v1/users", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "bob", body["user_account"])
		_, _ = w.Write(okEnvelope(&domain.User{ID: "u2", UserAccount: "bob", Role: domain.RoleStaffAdmin}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	u, err := c.CreateUser(context.Background(), CreateUserRequest{
		UserAccount: "bob",
		Password:    "s3cret",
		Role:        domain.RoleStaffAdmin,
		IsActive:    true,
	})
	require.NoError(t, err)
	require.Equal(t, "u2", u.ID)
}

func TestCreateUser_DuplicateAccountRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		b, _ := json.Marshal(map[string]any{
			"code": -1, "type": "error", "message": "validation failed",
			"errors": map[string][]string{"user_account": {"a user with that account already exists"}},
		})
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.CreateUser(context.Background(), CreateUserRequest{UserAccount: "alice", Password: "x"})
	var verrs domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Contains(t, verrs["user_account"][0], "already exists")
}

func TestUpdateUser_ValidationErrorsAreTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		b, _ := json.Marshal(map[string]any{
			"code": -1, "type": "error", "message": "validation failed",
			"errors": map[string][]string{"email": {"enter a valid email address"}},
		})
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	email := "not-an-email"
	_, err := c.UpdateUser(context.Background(), "u1", domain.UserDraft{Email: &email})
	require.Error(t, err)

	var verrs domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Equal(t, []string{"enter a valid email address"}, verrs["email"])
}

func TestUpdateUser_ReturnsCanonicalRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		// nil pointers must not be serialized as nulls
		require.NotContains(t, body, "role")
		_, _ = w.Write(okEnvelope(&domain.User{ID: "u1", UserAccount: "alice", Nickname: "Al"}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	nick := "Al"
	u, err := c.UpdateUser(context.Background(), "u1", domain.UserDraft{Nickname: &nick})
	require.NoError(t, err)
	require.Equal(t, "Al", u.Nickname)
}

func TestDeleteUser(t *testing.T) {
	deleted := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/admin/api/v1/users/u9", r.URL.Path)
		deleted = true
		_, _ = w.Write(okEnvelope(nil))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	require.NoError(t, c.DeleteUser(context.Background(), "u9"))
	require.True(t, deleted)
}
