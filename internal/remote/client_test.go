package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orbitsocial/backend/internal/relationships"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]string
}

func newRecordingServer(t *testing.T, status int, response string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	recorded := &recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorded.method = r.Method
		recorded.path = r.URL.Path
		recorded.query = r.URL.RawQuery
		recorded.auth = r.Header.Get("Authorization")
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&recorded.body)
		}
		w.WriteHeader(status)
		if response != "" {
			_, _ = w.Write([]byte(response))
		}
	}))
	t.Cleanup(server.Close)
	return server, recorded
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(ClientConfig{BaseURL: server.URL, Token: "token"})
}

func TestClientSendRequest(t *testing.T) {
	server, recorded := newRecordingServer(t, http.StatusCreated, "")
	client := newTestClient(server)

	if err := client.SendRequest(context.Background(), "target-user"); err != nil {
		t.Fatalf("send request: %v", err)
	}
	if recorded.method != http.MethodPost || recorded.path != "/api/v1/relationships/requests" {
		t.Fatalf("unexpected request %s %s", recorded.method, recorded.path)
	}
	if recorded.auth != "Bearer token" {
		t.Fatalf("unexpected authorization header %q", recorded.auth)
	}
	if recorded.body["target"] != "target-user" {
		t.Fatalf("unexpected body %v", recorded.body)
	}
}

func TestClientMutationPaths(t *testing.T) {
	cases := []struct {
		name   string
		call   func(*Client) error
		method string
		path   string
	}{
		{
			name:   "accept",
			call:   func(c *Client) error { return c.AcceptRequest(context.Background(), "v") },
			method: http.MethodPost,
			path:   "/api/v1/relationships/requests/v/accept",
		},
		{
			name:   "decline",
			call:   func(c *Client) error { return c.DeclineRequest(context.Background(), "v") },
			method: http.MethodPost,
			path:   "/api/v1/relationships/requests/v/decline",
		},
		{
			name:   "cancel",
			call:   func(c *Client) error { return c.CancelRequest(context.Background(), "v") },
			method: http.MethodDelete,
			path:   "/api/v1/relationships/requests/v",
		},
		{
			name:   "remove friend",
			call:   func(c *Client) error { return c.RemoveFriend(context.Background(), "v") },
			method: http.MethodDelete,
			path:   "/api/v1/relationships/friends/v",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server, recorded := newRecordingServer(t, http.StatusOK, "")
			if err := tc.call(newTestClient(server)); err != nil {
				t.Fatalf("call: %v", err)
			}
			if recorded.method != tc.method || recorded.path != tc.path {
				t.Fatalf("got %s %s, want %s %s", recorded.method, recorded.path, tc.method, tc.path)
			}
		})
	}
}

func TestClientStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"conflict", http.StatusConflict, func(err error) bool { return errors.Is(err, relationships.ErrConflict) }},
		{"unauthorized", http.StatusUnauthorized, func(err error) bool { return errors.Is(err, relationships.ErrAuth) }},
		{"forbidden", http.StatusForbidden, func(err error) bool { return errors.Is(err, relationships.ErrAuth) }},
		{"server error", http.StatusInternalServerError, func(err error) bool {
			var netErr *relationships.NetworkError
			return errors.As(err, &netErr)
		}},
		{"unexpected", http.StatusTeapot, func(err error) bool {
			var netErr *relationships.NetworkError
			return err != nil && !errors.As(err, &netErr) &&
				!errors.Is(err, relationships.ErrConflict) && !errors.Is(err, relationships.ErrAuth)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server, _ := newRecordingServer(t, tc.status, "")
			err := newTestClient(server).SendRequest(context.Background(), "v")
			if !tc.check(err) {
				t.Fatalf("status %d mapped to %v", tc.status, err)
			}
		})
	}
}

func TestClientTransportFailure(t *testing.T) {
	server, _ := newRecordingServer(t, http.StatusOK, "")
	server.Close()

	err := newTestClient(server).SendRequest(context.Background(), "v")
	var netErr *relationships.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestClientListFriends(t *testing.T) {
	server, recorded := newRecordingServer(t, http.StatusOK, `{"items":["a","b"],"nextCursor":"c2"}`)
	client := newTestClient(server)

	page, err := client.ListFriends(context.Background(), "c1", 25)
	if err != nil {
		t.Fatalf("list friends: %v", err)
	}
	if recorded.path != "/api/v1/relationships/friends" {
		t.Fatalf("unexpected path %s", recorded.path)
	}
	if recorded.query != "cursor=c1&limit=25" {
		t.Fatalf("unexpected query %s", recorded.query)
	}
	if len(page.IDs) != 2 || page.IDs[0] != "a" || page.IDs[1] != "b" {
		t.Fatalf("unexpected ids %v", page.IDs)
	}
	if page.NextCursor != "c2" {
		t.Fatalf("unexpected cursor %q", page.NextCursor)
	}
}

func TestClientSearchUsers(t *testing.T) {
	body := `{"items":[{"id":"u1","displayName":"Uno","avatarRef":"avatars/u1","friendCount":3,"eventCount":1}],"nextCursor":""}`
	server, recorded := newRecordingServer(t, http.StatusOK, body)
	client := newTestClient(server)

	page, err := client.SearchUsers(context.Background(), "un", "", 10)
	if err != nil {
		t.Fatalf("search users: %v", err)
	}
	if recorded.path != "/api/v1/users/search" {
		t.Fatalf("unexpected path %s", recorded.path)
	}
	if recorded.query != "limit=10&q=un" {
		t.Fatalf("unexpected query %s", recorded.query)
	}
	if len(page.Items) != 1 {
		t.Fatalf("unexpected items %v", page.Items)
	}
	got := page.Items[0]
	if got.ID != "u1" || got.DisplayName != "Uno" || got.AvatarRef != "avatars/u1" || got.FriendCount != 3 {
		t.Fatalf("unexpected profile %+v", got)
	}
	if page.NextCursor != "" {
		t.Fatalf("unexpected cursor %q", page.NextCursor)
	}
}

func TestClientListMalformedResponse(t *testing.T) {
	server, _ := newRecordingServer(t, http.StatusOK, `{"items":`)
	if _, err := newTestClient(server).ListIncoming(context.Background(), "", 10); err == nil {
		t.Fatal("expected decode error")
	}
}
