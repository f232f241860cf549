package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbols") != "9432.T" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("X-API-KEY") != "k" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"9432.T"}`))
	}))
	defer srv.Close()

	c := NewClient()
	var out struct{ Symbol string }
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL,
		Headers:     map[string]string{"X-API-KEY": "k"},
		QueryParams: map[string][]string{"symbols": {"9432.T"}},
	}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Symbol != "9432.T" {
		t.Fatalf("decoded %+v", out)
	}
}

func TestSendAndParseStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	err := NewClient().SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusTooManyRequests || se.Body != "slow down" {
		t.Fatalf("expected 429 StatusError, got %v", err)
	}
	if StatusOf(err) != http.StatusTooManyRequests {
		t.Fatalf("StatusOf = %d", StatusOf(err))
	}
	if StatusOf(errors.New("dial tcp: refused")) != 0 {
		t.Fatalf("transport errors should map to 0")
	}
}

func TestIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	url := srv.URL
	c := NewClient()

	var dest map[string]interface{}
	err := c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: url}, &dest)
	if err == nil || IsTransportError(err) {
		t.Fatalf("decode failure is not a transport error: %v", err)
	}
	if IsTransportError(&StatusError{Status: http.StatusNotFound}) {
		t.Fatalf("status errors are not transport errors")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.SendAndParse(ctx, &RequestOptions{Method: MethodGet, URL: url}, nil); IsTransportError(err) {
		t.Fatalf("cancellation is not a transport error: %v", err)
	}

	srv.Close()
	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: url}, nil)
	if !IsTransportError(err) || StatusOf(err) != 0 {
		t.Fatalf("expected transport error from closed server, got %v", err)
	}
}
