package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-plantid/internal/config"
	"github.com/teslashibe/go-plantid/internal/log"
	"github.com/teslashibe/go-plantid/pkg/camera"
	"github.com/teslashibe/go-plantid/pkg/plant"
	"github.com/teslashibe/go-plantid/pkg/studio"
)

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		APIKey:          "test-key",
		Model:           "gemini-test",
		Endpoint:        endpoint,
		IdentifyTimeout: 5 * time.Second,
		Port:            8080,
		LogLevel:        "error",
		Camera: config.CameraConfig{
			Preset:     camera.PresetDefault,
			PreviewFPS: 5,
		},
	}
}

func TestRootCommandHelp(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, sub := range []string{"serve", "identify", "devices", "watch"} {
		if !strings.Contains(out.String(), sub) {
			t.Errorf("help missing %q", sub)
		}
	}
}

func TestIdentifyRequiresInput(t *testing.T) {
	chdir(t, t.TempDir())
	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"identify"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--camera") {
		t.Errorf("err = %v, want missing input error", err)
	}
}

func TestApplicationIdentifyEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Name: Monstera\nScientific Name: Monstera deliciosa\nCare Tips: Bright indirect light"}]}}]}`)
	}))
	defer srv.Close()

	host := camera.NewMockPhone()
	app, err := newApplication(testConfig(srv.URL+"/"), host, log.New(io.Discard, "error", false))
	if err != nil {
		t.Fatal(err)
	}
	defer app.shutdown()

	ctx := context.Background()
	if err := captureStill(ctx, app, "front", 0); err != nil {
		t.Fatalf("captureStill failed: %v", err)
	}
	if host.OpenCount() != 0 {
		t.Error("camera left open after capture")
	}

	rec, err := app.studio.Identify(ctx)
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if rec.Name != "Monstera" || rec.Family != "No family available" {
		t.Errorf("record = %+v", rec)
	}

	out := renderRecord(rec)
	if !strings.Contains(out, "Monstera deliciosa") || !strings.Contains(out, "No family available") {
		t.Errorf("rendered record:\n%s", out)
	}
}

func TestApplicationMissingKey(t *testing.T) {
	cfg := testConfig("")
	cfg.APIKey = ""
	app, err := newApplication(cfg, camera.NewMockPhone(), log.New(io.Discard, "error", false))
	if err != nil {
		t.Fatal(err)
	}
	defer app.shutdown()

	app.studio.Upload(camera.MockFrame())
	_, err = app.studio.Identify(context.Background())
	if plant.ReasonOf(err) != plant.ReasonConfig {
		t.Errorf("reason = %q, want CONFIG_ERROR", plant.ReasonOf(err))
	}
}

func TestApplicationUnknownPreset(t *testing.T) {
	cfg := testConfig("")
	cfg.Camera.Preset = "imax"
	if _, err := newApplication(cfg, camera.NewMockPhone(), log.New(io.Discard, "error", false)); err == nil {
		t.Error("expected unknown preset error")
	}
}

func TestDeviceFacings(t *testing.T) {
	got := deviceFacings(config.CameraConfig{FrontDev: "/dev/video0", RearDev: "/dev/video2"})
	if got["/dev/video0"] != camera.FacingFront || got["/dev/video2"] != camera.FacingRear {
		t.Errorf("facings = %v", got)
	}
	if len(deviceFacings(config.CameraConfig{})) != 0 {
		t.Error("empty config should pin nothing")
	}
}

func TestReadImageStdin(t *testing.T) {
	data, err := readImage(strings.NewReader("abc"), "-")
	if err != nil || string(data) != "abc" {
		t.Errorf("readImage = %q, %v", data, err)
	}
}

func TestStateURL(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"localhost:8080", "ws://localhost:8080/ws/state", true},
		{"http://plants.local/", "ws://plants.local/ws/state", true},
		{"https://plants.example.com", "wss://plants.example.com/ws/state", true},
		{"ftp://x", "", false},
	}
	for _, tt := range tests {
		got, err := stateURL(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("stateURL(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWatchState(t *testing.T) {
	states := []studio.State{
		{Camera: studio.CameraState{Active: true, Facing: camera.FacingRear, Device: "rear-0", Permission: camera.PermissionGranted}},
		{Loading: true, Image: &studio.ImageInfo{Source: "camera", Width: 16, Height: 16}},
		{Record: &plant.Record{Name: "Rose", ScientificName: "Rosa"}, Image: &studio.ImageInfo{Source: "camera", Width: 16, Height: 16}},
	}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/state" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, st := range states {
			data, _ := json.Marshal(st)
			conn.WriteMessage(websocket.TextMessage, data)
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := watchState(ctx, srv.URL, &out, false); err != nil {
		t.Fatalf("watchState failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "camera=rear(rear-0)") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "identifying") {
		t.Errorf("line 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], `plant="Rose" (Rosa)`) {
		t.Errorf("line 2 = %q", lines[2])
	}
}

func TestRenderDevices(t *testing.T) {
	out := renderDevices([]camera.DeviceInfo{
		{ID: "video0", Label: "Integrated Webcam", Path: "/dev/video0", Facing: camera.FacingFront},
	})
	for _, want := range []string{"ID", "Integrated Webcam", "/dev/video0", "front"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restore cwd: %v", err)
		}
	})
}
