package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
	"github.com/Y4SS11N3/skillsync-realtime/pkg/errs"
)

func newClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/", Token: "tok", UserID: 7})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCall_AuthHeaders(t *testing.T) {
	var gotAuth, gotUser string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUser = r.Header.Get("X-User-ID")
		_ = json.NewEncoder(w).Encode(domain.Room{ID: "r1", ExchangeID: 42})
	})

	room, err := c.RoomByExchange(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if room.ID != "r1" || room.ExchangeID != 42 {
		t.Fatalf("room = %+v", room)
	}
	if gotAuth != "Bearer tok" || gotUser != "7" {
		t.Fatalf("headers = %q / %q", gotAuth, gotUser)
	}
}

func TestSendMessage_PostsBody(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.RoomID != "r1" || req.Content != "hello" {
			t.Errorf("body = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(domain.Message{ID: "m1", RoomID: req.RoomID, Content: req.Content})
	})

	msg, err := c.SendMessage(context.Background(), "r1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "m1" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestCall_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, errs.ErrValidation},
		{http.StatusUnauthorized, errs.ErrUnauthorized},
		{http.StatusForbidden, errs.ErrUnauthorized},
		{http.StatusNotFound, errs.ErrNotFound},
		{http.StatusInternalServerError, errs.ErrUpstream},
	}
	for _, tc := range cases {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "nope"})
		})
		_, err := c.History(context.Background(), "r1")
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
	}
}

func TestCall_NetworkError(t *testing.T) {
	c, err := New(Options{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.InitSession(context.Background(), 1)
	if !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
