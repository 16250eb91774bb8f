package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/csvstore"
	"github.com/kozaktomas/face-attendance/internal/faceapi"
)

type noFaces struct{}

func (noFaces) DetectFaces(ctx context.Context, imageData []byte) (*faceapi.FaceResponse, error) {
	return &faceapi.FaceResponse{Model: "buffalo_l"}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := csvstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	backend := store.Backend()
	if err := backend.Students.SaveStudent(t.Context(), &database.Student{ID: "S001", Name: "Alice"}); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Recognition: config.RecognitionConfig{Threshold: 0.85, ProcessEveryN: 15},
		Embedding:   config.EmbeddingConfig{Dim: 3},
		Storage:     config.StorageConfig{Backend: "csv"},
		Web: config.WebConfig{
			Host:          "127.0.0.1",
			Port:          8085,
			SessionSecret: "test-secret",
			Users: []config.User{
				{Username: "admin", Password: "admin123", Name: "Administrator", Role: "Administrator"},
				{Username: "test", Password: "test123", Name: "Test User", Role: "Test"},
			},
		},
	}

	s, err := NewServer(cfg, Services{Backend: backend, Extractor: noFaces{}}, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(s.SessionManager().Stop)
	return s
}

func login(t *testing.T, s *Server, username, password string) string {
	t.Helper()
	body := strings.NewReader(`{"username":"` + username + `","password":"` + password + `"}`)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/auth/login", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d, body %s", username, rec.Code, rec.Body.String())
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.SessionID == "" {
		t.Fatalf("login %s: no session id in %s", username, rec.Body.String())
	}
	return resp.SessionID
}

func TestNewServer_RequiresServices(t *testing.T) {
	if _, err := NewServer(&config.Config{}, Services{Extractor: noFaces{}}, nil); err == nil {
		t.Error("expected an error without a backend")
	}
	store, err := csvstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewServer(&config.Config{}, Services{Backend: store.Backend()}, nil); err == nil {
		t.Error("expected an error without an extractor")
	}
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t)
	admin := login(t, s, "admin", "admin123")
	tester := login(t, s, "test", "test123")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"health is public", "GET", "/api/v1/health", "", http.StatusOK},
		{"status is public", "GET", "/api/v1/auth/status", "", http.StatusOK},
		{"students need auth", "GET", "/api/v1/students", "", http.StatusUnauthorized},
		{"students", "GET", "/api/v1/students", admin, http.StatusOK},
		{"student", "GET", "/api/v1/students/S001", tester, http.StatusOK},
		{"missing student", "GET", "/api/v1/students/S404", admin, http.StatusNotFound},
		{"attendance", "GET", "/api/v1/attendance?date=2026-03-02", admin, http.StatusOK},
		{"stats", "GET", "/api/v1/attendance/stats", admin, http.StatusOK},
		{"export", "GET", "/api/v1/attendance/export?date=2026-03-02", tester, http.StatusOK},
		{"config", "GET", "/api/v1/config", admin, http.StatusOK},
		{"identify forbidden for test role", "POST", "/api/v1/identify", tester, http.StatusForbidden},
		{"identify needs auth", "POST", "/api/v1/identify", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()

			s.Router().ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("%s %s: status %d, want %d (body %s)", tt.method, tt.path, rec.Code, tt.status, rec.Body.String())
			}
			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers missing")
			}
		})
	}
}

func TestServer_SPA(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path        string
		status      int
		contentType string
	}{
		{"/", http.StatusOK, "text/html; charset=utf-8"},
		{"/attendance/today", http.StatusOK, "text/html; charset=utf-8"},
		{"/assets/app.js", http.StatusOK, "application/javascript; charset=utf-8"},
		{"/assets/missing.js", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Router().ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))

			if rec.Code != tt.status {
				t.Fatalf("status %d, want %d", rec.Code, tt.status)
			}
			if tt.contentType != "" && rec.Header().Get("Content-Type") != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", rec.Header().Get("Content-Type"), tt.contentType)
			}
		})
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if !strings.Contains(rec.Body.String(), "<title>Face Attendance</title>") {
		t.Error("index.html not served")
	}
}
