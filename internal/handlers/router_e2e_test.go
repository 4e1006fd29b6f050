package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"soul_garden/internal/auth"
	"soul_garden/internal/models"
	"soul_garden/internal/realtime"
	"soul_garden/internal/storage"
	"soul_garden/internal/streak"
	"soul_garden/internal/usecases"
	"soul_garden/internal/voice"

	"github.com/gorilla/websocket"
)

type e2e struct {
	srv    *httptest.Server
	garden *usecases.Garden
	tokens *auth.Tokens
	voices *voice.LocalStore
	hub    *realtime.Hub
}

func newE2EServer(t *testing.T, secret string, opts ...usecases.Option) *e2e {
	t.Helper()

	store, err := storage.NewSQLiteStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	voices, err := voice.NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("voice store: %v", err)
	}

	hub := realtime.NewHub()
	opts = append([]usecases.Option{usecases.WithBroadcaster(hub)}, opts...)
	garden := usecases.NewGarden(store, voices, streak.DefaultRules(), opts...)
	tokens := auth.NewTokens(secret, 0)

	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := httptest.NewServer(NewRouter(Deps{
		Garden:      garden,
		DB:          store,
		Tokens:      tokens,
		Hub:         hub,
		AdminToken:  "admin-secret",
		Media:       voices.Handler(),
		WebhookPath: "/123:abc",
		Webhook:     webhook,
	}))
	t.Cleanup(func() {
		srv.Close()
		_ = store.Close()
	})

	return &e2e{srv: srv, garden: garden, tokens: tokens, voices: voices, hub: hub}
}

func postJSON(t *testing.T, client *http.Client, url, bearer string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return out
}

func (e *e2e) token(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := e.tokens.Issue(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

func TestIndexAndHealthE2E(t *testing.T) {
	e := newE2EServer(t, "")
	client := e.srv.Client()

	resp, err := client.Get(e.srv.URL + "/")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "SoulGarden Bot is running") {
		t.Fatalf("unexpected index %q", body)
	}

	resp, err = client.Get(e.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	health := decodeJSON[map[string]string](t, resp)
	if health["status"] != "ok" {
		t.Fatalf("unexpected health %+v", health)
	}

	resp, err = client.Post(e.srv.URL+"/123:abc", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook route not mounted, got %d", resp.StatusCode)
	}
}

func TestCreateAndListMemoriesE2E(t *testing.T) {
	e := newE2EServer(t, "s3cret")
	client := e.srv.Client()
	url := e.srv.URL + "/api/users/7/memories"

	resp := postJSON(t, client, url, "", map[string]string{"mood": "😊", "text": "hi"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = postJSON(t, client, url, e.token(t, 8), map[string]string{"mood": "😊", "text": "hi"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("another user's token must not work, got %d", resp.StatusCode)
	}

	tok := e.token(t, 7)
	resp = postJSON(t, client, url, tok, map[string]string{"mood": "😊", "text": "   "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty text, got %d", resp.StatusCode)
	}

	resp = postJSON(t, client, url, tok, map[string]string{"mood": "😊", "text": "planted tulips"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[struct {
		Status string           `json:"status"`
		Data   models.LogResult `json:"data"`
	}](t, resp)
	if created.Data.User.Points != 5 || created.Data.User.Streak != 1 || !created.Data.Outcome.StreakChanged {
		t.Fatalf("unexpected accrual %+v", created.Data)
	}

	for i := 0; i < 3; i++ {
		postJSON(t, client, url, tok, map[string]string{"text": "more " + strconv.Itoa(i)}).Body.Close()
	}

	resp, err := client.Get(url + "?limit=2&t=" + tok)
	if err != nil {
		t.Fatalf("get memories: %v", err)
	}
	list := decodeJSON[struct {
		Data []models.Memory `json:"data"`
	}](t, resp)
	if len(list.Data) != 2 || list.Data[0].Text != "more 2" {
		t.Fatalf("unexpected list %+v", list.Data)
	}

	resp, err = client.Get(e.srv.URL + "/api/users/7?t=" + tok)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	stats := decodeJSON[struct {
		Data struct {
			User models.User `json:"user"`
			Rank int         `json:"rank"`
		} `json:"data"`
	}](t, resp)
	if stats.Data.User.Points != 20 || stats.Data.Rank != 1 {
		t.Fatalf("unexpected stats %+v", stats.Data)
	}
}

func TestParseLimit(t *testing.T) {
	cases := map[string]int{"": 10, "abc": 10, "-1": 10, "0": 10, "5": 5, "1000": 100}
	for raw, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/x?limit="+raw, nil)
		if got := parseLimit(r, 10, 100); got != want {
			t.Fatalf("limit %q: got %d want %d", raw, got, want)
		}
	}
}

func TestDashboardE2E(t *testing.T) {
	e := newE2EServer(t, "s3cret")
	client := e.srv.Client()
	ctx := context.Background()

	e.garden.Register(ctx, 5, "Daisy <3")
	e.garden.LogText(ctx, 5, "😊", "<b>sun</b>")
	e.garden.LogVoice(ctx, 5, "", strings.NewReader("OggS"), "audio/ogg")

	resp, err := client.Get(e.srv.URL + "/dashboard/5")
	if err != nil {
		t.Fatalf("get dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp, err = client.Get(e.srv.URL + "/dashboard/5?t=" + e.token(t, 5))
	if err != nil {
		t.Fatalf("get dashboard: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	page := string(body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, page)
	}
	if !strings.Contains(page, "Daisy &lt;3") || !strings.Contains(page, "&lt;b&gt;sun&lt;/b&gt;") {
		t.Fatalf("user content must be escaped: %s", page)
	}
	if !strings.Contains(page, `<audio controls preload="none" src="/media/voice/5/`) {
		t.Fatalf("voice memory not rendered: %s", page)
	}
	if !strings.Contains(page, "🌻") || !strings.Contains(page, "🎵") {
		t.Fatalf("garden flowers missing: %s", page)
	}

	resp, err = client.Get(e.srv.URL + "/dashboard/6?t=" + e.token(t, 6))
	if err != nil {
		t.Fatalf("get dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown garden, got %d", resp.StatusCode)
	}
}

func TestMediaServedE2E(t *testing.T) {
	e := newE2EServer(t, "")
	res, err := e.garden.LogVoice(context.Background(), 2, "", strings.NewReader("OggS-bytes"), "audio/ogg")
	if err != nil {
		t.Fatalf("log voice: %v", err)
	}

	resp, err := e.srv.Client().Get(e.srv.URL + res.Memory.VoiceURL)
	if err != nil {
		t.Fatalf("get media: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "OggS-bytes" {
		t.Fatalf("unexpected media response %d %q", resp.StatusCode, body)
	}
}

func TestMediaHidesDirectoriesE2E(t *testing.T) {
	e := newE2EServer(t, "s3cret")
	if _, err := e.garden.LogVoice(context.Background(), 5, "", strings.NewReader("OggS"), "audio/ogg"); err != nil {
		t.Fatalf("log voice: %v", err)
	}

	for _, path := range []string{"/media/voice/", "/media/voice/5/"} {
		resp, err := e.srv.Client().Get(e.srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound || strings.Contains(string(body), ".ogg") {
			t.Fatalf("%s: expected 404 without a listing, got %d %q", path, resp.StatusCode, body)
		}
	}
}

type fakeGenerator struct {
	reply string
	err   error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f.reply, f.err
}

func TestInsightE2E(t *testing.T) {
	ctx := context.Background()

	t.Run("no AI configured", func(t *testing.T) {
		e := newE2EServer(t, "")
		e.garden.LogText(ctx, 1, "😊", "sunny walk")

		resp := postJSON(t, e.srv.Client(), e.srv.URL+"/api/users/1/insight", "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", resp.StatusCode)
		}
	})

	t.Run("secret requires a token", func(t *testing.T) {
		e := newE2EServer(t, "s3cret", usecases.WithGenerator(&fakeGenerator{reply: "Answer: hi"}))
		e.garden.LogText(ctx, 1, "😊", "sunny walk")
		client := e.srv.Client()

		resp := postJSON(t, client, e.srv.URL+"/api/users/1/insight", "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 without a token, got %d", resp.StatusCode)
		}

		resp = postJSON(t, client, e.srv.URL+"/api/users/1/insight", e.token(t, 2), nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 with another user's token, got %d", resp.StatusCode)
		}

		resp = postJSON(t, client, e.srv.URL+"/api/users/1/insight", e.token(t, 1), nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 with the owner's token, got %d", resp.StatusCode)
		}
	})

	t.Run("no memories", func(t *testing.T) {
		e := newE2EServer(t, "", usecases.WithGenerator(&fakeGenerator{reply: "Answer: hi"}))
		client := e.srv.Client()

		resp := postJSON(t, client, e.srv.URL+"/api/users/9/insight", "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404 for an unknown user, got %d", resp.StatusCode)
		}

		if _, err := e.garden.Register(ctx, 9, "fern"); err != nil {
			t.Fatalf("register: %v", err)
		}
		resp = postJSON(t, client, e.srv.URL+"/api/users/9/insight", "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404 without memories, got %d", resp.StatusCode)
		}
	})

	t.Run("insight", func(t *testing.T) {
		gen := &fakeGenerator{reply: "Answer: You glow.\n|||GARDEN|||\nMood: calm\nTip: walk"}
		e := newE2EServer(t, "", usecases.WithGenerator(gen))
		e.garden.LogText(ctx, 1, "😊", "sunny walk")

		resp := postJSON(t, e.srv.Client(), e.srv.URL+"/api/users/1/insight", "", nil)
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		out := decodeJSON[struct {
			Status string         `json:"status"`
			Data   models.Insight `json:"data"`
		}](t, resp)
		if out.Status != "success" || out.Data.Answer != "You glow." || out.Data.Mood != "calm" || out.Data.Tip != "walk" {
			t.Fatalf("unexpected insight %+v", out)
		}
	})

	t.Run("AI error", func(t *testing.T) {
		e := newE2EServer(t, "", usecases.WithGenerator(&fakeGenerator{err: errors.New("upstream 500")}))
		e.garden.LogText(ctx, 1, "😊", "sunny walk")

		resp := postJSON(t, e.srv.Client(), e.srv.URL+"/api/users/1/insight", "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", resp.StatusCode)
		}
	})
}

func TestLeaderboardE2E(t *testing.T) {
	e := newE2EServer(t, "")
	client := e.srv.Client()
	ctx := context.Background()

	resp, err := client.Get(e.srv.URL + "/api/leaderboard")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	empty := decodeJSON[struct {
		Data []models.LeaderboardEntry `json:"data"`
	}](t, resp)
	if empty.Data == nil || len(empty.Data) != 0 {
		t.Fatalf("expected an empty array, got %+v", empty.Data)
	}

	e.garden.Register(ctx, 1, "Rose")
	e.garden.Register(ctx, 2, "Ivy")
	e.garden.LogText(ctx, 1, "😊", "a")
	e.garden.LogText(ctx, 2, "😊", "b")
	e.garden.LogText(ctx, 2, "😊", "c")

	resp, err = client.Get(e.srv.URL + "/api/leaderboard?limit=1")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	top := decodeJSON[struct {
		Data []models.LeaderboardEntry `json:"data"`
	}](t, resp)
	if len(top.Data) != 1 || top.Data[0].Username != "Ivy" || top.Data[0].Points != 10 {
		t.Fatalf("unexpected leaderboard %+v", top.Data)
	}

	resp, err = client.Get(e.srv.URL + "/leaderboard")
	if err != nil {
		t.Fatalf("get leaderboard page: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "<td>Ivy</td>") || !strings.Contains(string(body), "<td>Rose</td>") {
		t.Fatalf("unexpected page %s", body)
	}
}

func TestLeaderboardWebsocketE2E(t *testing.T) {
	e := newE2EServer(t, "")
	ctx := context.Background()
	e.garden.Register(ctx, 1, "Rose")

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/leaderboard"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot struct {
		Kind        string                    `json:"kind"`
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Kind != "leaderboard.snapshot" || len(snapshot.Leaderboard) != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	// The hub registers the client right after the snapshot.
	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := e.garden.LogText(ctx, 1, "😊", "update"); err != nil {
		t.Fatalf("log: %v", err)
	}
	var update struct {
		Kind        string                    `json:"kind"`
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.Kind != "leaderboard.updated" || len(update.Leaderboard) != 1 || update.Leaderboard[0].Points != 5 {
		t.Fatalf("unexpected update %+v", update)
	}
}

func TestAdminFixVoicePathsE2E(t *testing.T) {
	e := newE2EServer(t, "")
	client := e.srv.Client()

	resp := postJSON(t, client, e.srv.URL+"/admin/fix-voice-paths", "", map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without admin token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, e.srv.URL+"/admin/fix-voice-paths", strings.NewReader(`{"prefix":"static/"}`))
	req.Header.Set("X-Admin-Token", "admin-secret")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("post admin: %v", err)
	}
	out := decodeJSON[map[string]any](t, resp)
	if out["status"] != "success" || out["updated"] != float64(0) {
		t.Fatalf("unexpected admin response %+v", out)
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	h := NewAuthHandler(nil, "")
	rec := httptest.NewRecorder()
	h.RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	})(rec, httptest.NewRequest(http.MethodPost, "/admin/fix-voice-paths", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
