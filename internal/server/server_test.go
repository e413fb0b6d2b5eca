package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ivlev/vodscrub/internal/extract"
	"github.com/ivlev/vodscrub/internal/heroes"
	"github.com/ivlev/vodscrub/internal/ops"
	"github.com/ivlev/vodscrub/internal/timeline"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	if opts.Store == nil {
		opts.Store = timeline.NewStore()
	}
	if _, err := opts.Store.AddMatch(0, 100, "Ilios", "Control"); err != nil {
		t.Fatal(err)
	}
	if err := opts.Store.UpdatePlayerName(0, timeline.SlotIndex(0), "Fate"); err != nil {
		t.Fatal(err)
	}
	if err := opts.Store.UpdatePlayerHero(0, timeline.SlotIndex(0), "Winston"); err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(New(opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postOps(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/ops", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getLabels(t *testing.T, ts *httptest.Server, at string) labelsPayload {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/labels?t=" + at)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("labels status %d", resp.StatusCode)
	}
	var got labelsPayload
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	return got
}

func TestLabelsAndOps(t *testing.T) {
	ts := newTestServer(t, Options{})

	got := getLabels(t, ts, "30")
	if got.Match != "Match 1" || got.PlayerNames[0] != "Fate" || got.PlayerHeroes[0] != "Winston" {
		t.Errorf("labels = %+v", got)
	}
	if got.Time != "00:30:000" {
		t.Errorf("time = %q", got.Time)
	}

	resp := postOps(t, ts, `[{"op":"set_player_name","t":30,"slot":0,"name":"Fearless"}]`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ops status %d", resp.StatusCode)
	}
	after := getLabels(t, ts, "30")
	if after.PlayerNames[0] != "Fearless" || after.Version <= got.Version {
		t.Errorf("rename not visible: %+v", after)
	}

	if outside := getLabels(t, ts, "150"); outside.Match != "" || len(outside.Kills) != 0 {
		t.Errorf("labels outside a match = %+v", outside)
	}
}

func TestOpsErrorStatus(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"overlap", `{"op":"add_match","t":50,"end":120}`, http.StatusConflict},
		{"no match", `{"op":"remove_match","t":500}`, http.StatusNotFound},
		{"unknown op", `{"op":"rewind"}`, http.StatusBadRequest},
		{"bad slot", `{"op":"set_player_name","t":1,"slot":12,"name":"x"}`, http.StatusBadRequest},
		{"malformed", `{"op":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := postOps(t, ts, tt.body); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	catalog, err := heroes.Parse([]byte("heroes:\n  - name: Winston\n  - name: Ana\n"))
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, Options{Applier: ops.Applier{Catalog: catalog}})

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Matches != 1 || got.Frames != 0 || got.Extraction != nil {
		t.Errorf("status = %+v", got)
	}
	if len(got.Heroes) != 2 || got.Heroes[0] != "Ana" || got.Heroes[1] != "Winston" {
		t.Errorf("heroes = %v", got.Heroes)
	}
}

func TestSaveAndTimeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vod.description.json")
	ts := newTestServer(t, Options{DescriptionPath: path})

	resp, err := http.Post(ts.URL+"/api/save", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status %d", resp.StatusCode)
	}

	saved, err := timeline.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if ms := saved.Matches(); len(ms) != 1 || ms[0].Map != "Ilios" {
		t.Errorf("saved matches = %+v", ms)
	}

	resp, err = http.Get(ts.URL + "/api/timeline")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	served, err := timeline.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(served.Matches()) != 1 {
		t.Errorf("served matches = %d", len(served.Matches()))
	}
}

func TestFrameEndpoint(t *testing.T) {
	dir := t.TempDir()
	meta := extract.Metadata{FrameSize: [2]int{2, 2}, FrameRate: 10, FrameCount: 20, FrameInterval: 10}
	frames := extract.NewFrames(dir, meta)
	if err := os.WriteFile(frames.Paths[0], []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, Options{Frames: frames})

	tests := []struct {
		at   string
		want int
	}{
		{"0.5", http.StatusOK},
		{"1.5", http.StatusAccepted},
		{"nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + "/api/frame?t=" + tt.at)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("t=%s: status %d, want %d", tt.at, resp.StatusCode, tt.want)
		}
	}
}

func TestLabelsWebSocket(t *testing.T) {
	ts := newTestServer(t, Options{PushInterval: 20 * time.Millisecond})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/labels?t=10"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	next := func(want func(labelsPayload) bool) labelsPayload {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for {
			_ = conn.SetReadDeadline(deadline)
			var got labelsPayload
			if err := conn.ReadJSON(&got); err != nil {
				t.Fatalf("read: %v", err)
			}
			if want(got) {
				return got
			}
		}
	}

	first := next(func(p labelsPayload) bool { return p.T == 10 })
	if first.Match != "Match 1" {
		t.Errorf("initial push = %+v", first)
	}

	if err := conn.WriteJSON(cursorMessage{T: 200}); err != nil {
		t.Fatal(err)
	}
	next(func(p labelsPayload) bool { return p.T == 200 && p.Match == "" })

	if err := conn.WriteJSON(cursorMessage{T: 20}); err != nil {
		t.Fatal(err)
	}
	next(func(p labelsPayload) bool { return p.T == 20 })

	postOps(t, ts, `{"op":"set_player_hero","t":15,"slot":0,"hero":"Genji"}`)
	pushed := next(func(p labelsPayload) bool { return p.PlayerHeroes[0] == "Genji" })
	if pushed.T != 20 {
		t.Errorf("push after edit used cursor %v", pushed.T)
	}
}
