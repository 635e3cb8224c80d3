package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetUserSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/users/2", r.URL.Path)
		json.NewEncoder(w).Encode(User{ID: 2, DisplayName: "bob", PhotoURL: "http://p/2.png"})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	user, err := client.GetUser(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, user.ID)
	require.Equal(t, "bob", user.DisplayName)
}

func TestGetUserNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	_, err := client.GetUser(context.Background(), 99)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetUserUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	_, err := client.GetUser(context.Background(), 2)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUserNotFound)
}

func TestBulkUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/users", r.URL.Path)
		require.Equal(t, "2,3", r.URL.Query().Get("ids"))
		json.NewEncoder(w).Encode([]User{{ID: 2, DisplayName: "bob"}, {ID: 3, DisplayName: "carol"}})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	users, err := client.BulkUsers(context.Background(), []int{2, 3})
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "carol", users[1].DisplayName)
}

func TestBulkUsersEmptyInput(t *testing.T) {
	client := NewHTTPClient("http://unreachable.invalid")
	users, err := client.BulkUsers(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, users)
}
