package suggest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSuggestPostsForm(t *testing.T) {
	type request struct{ method, contentType, action, text string }
	got := make(chan request, 1)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- request{
			method:      r.Method,
			contentType: r.Header.Get("Content-Type"),
			action:      r.FormValue("action"),
			text:        r.FormValue("text"),
		}
		_, _ = w.Write([]byte("Use const for pin numbers.\n"))
	}))
	defer s.Close()

	c := NewClient(s.URL, "16", time.Second, nil)
	suggestion, err := c.Suggest(context.Background(), "void setup() {}\nvoid loop() {}\n")
	if err != nil {
		t.Fatal(err)
	}
	if suggestion != "Use const for pin numbers.\n" {
		t.Fatalf("suggestion = %q", suggestion)
	}
	req := <-got
	if req.method != http.MethodPost || req.contentType != "application/x-www-form-urlencoded" {
		t.Fatalf("request %s with content type %q", req.method, req.contentType)
	}
	if req.action != "16" || !strings.Contains(req.text, "void loop()") {
		t.Fatalf("form action=%q text=%q", req.action, req.text)
	}
}

func TestSuggestUpstreamError(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer s.Close()

	_, err := NewClient(s.URL, "16", time.Second, nil).Suggest(context.Background(), "x")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("error missing status or body: %v", err)
	}
}

func TestSuggestUnreachable(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	endpoint := s.URL
	s.Close()

	if _, err := NewClient(endpoint, "16", time.Second, nil).Suggest(context.Background(), "x"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}
