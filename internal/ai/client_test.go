package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newGigaChatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Basic test-key" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("scope") != DefaultScope {
			http.Error(w, "bad scope", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	})
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		var req GigaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 1 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		resp := GigaChatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message Message `json:"message"`
		}{Message: Message{Role: "assistant", Content: reply + " / " + req.Messages[0].Content}})
		json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate(t *testing.T) {
	srv := newGigaChatServer(t, "bloom")
	client := NewGigaChatClient("test-key",
		WithEndpoints(srv.URL+"/oauth", srv.URL+"/chat"),
		WithHTTPClient(srv.Client()),
	)

	got, err := client.Generate(context.Background(), "how is my garden")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "bloom / how is my garden" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestGenerateTokenFailure(t *testing.T) {
	srv := newGigaChatServer(t, "bloom")
	client := NewGigaChatClient("wrong-key",
		WithEndpoints(srv.URL+"/oauth", srv.URL+"/chat"),
		WithHTTPClient(srv.Client()),
	)

	_, err := client.Generate(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "token http 401") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth") {
			w.Write([]byte(`{"access_token":"x"}`))
			return
		}
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewGigaChatClient("k", WithEndpoints(srv.URL+"/oauth", srv.URL+"/chat"))
	if _, err := client.Generate(context.Background(), "hi"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
