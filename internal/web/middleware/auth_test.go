package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// memoryRepo is a SessionRepository backed by a map
type memoryRepo struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sessions: make(map[string]Session)}
}

func (m *memoryRepo) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memoryRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func newTestManager(t *testing.T, repo SessionRepository) *SessionManager {
	t.Helper()
	sm := NewSessionManager("test-secret", repo)
	t.Cleanup(sm.Stop)
	return sm
}

func TestSessionManager_CreateSession(t *testing.T) {
	sm := newTestManager(t, nil)

	session, err := sm.CreateSession("admin", "Admin", "Administrator")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ID == "" {
		t.Error("session ID is empty")
	}
	if session.Username != "admin" || session.Role != "Administrator" {
		t.Errorf("session = %+v", session)
	}
	if got := session.ExpiresAt.Sub(session.CreatedAt); got != 24*time.Hour {
		t.Errorf("lifetime = %v, want 24h", got)
	}
}

func TestSessionManager_GetAndDelete(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession("user", "User", "User")

	if got := sm.GetSession(session.ID); got == nil || got.Username != "user" {
		t.Fatalf("GetSession() = %+v", got)
	}
	if sm.GetSession("nonexistent-id") != nil {
		t.Error("GetSession() should return nil for non-existing session")
	}

	sm.DeleteSession(session.ID)
	if sm.GetSession(session.ID) != nil {
		t.Error("GetSession() should return nil after deletion")
	}
}

func TestSessionManager_Expired(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession("user", "User", "User")

	sm.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	if sm.GetSession(session.ID) != nil {
		t.Error("expired session must not be returned")
	}
}

func TestSessionManager_Repository(t *testing.T) {
	repo := newMemoryRepo()
	first := newTestManager(t, repo)
	session, err := first.CreateSession("admin", "Admin", "Administrator")
	if err != nil {
		t.Fatal(err)
	}

	// A restarted server reads the session back from the repository
	second := newTestManager(t, repo)
	got := second.GetSession(session.ID)
	if got == nil || got.Role != "Administrator" {
		t.Fatalf("GetSession() after restart = %+v", got)
	}

	second.DeleteSession(session.ID)
	if s, _ := repo.Get(context.Background(), session.ID); s != nil {
		t.Error("DeleteSession() must remove the stored session")
	}
}

func TestSessionManager_Cookie(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession("admin", "Admin", "Administrator")

	w := httptest.NewRecorder()
	sm.SetSessionCookie(w, httptest.NewRequest("GET", "/", nil), session)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("Session cookie not found")
	}
	if !cookie.HttpOnly || cookie.Secure {
		t.Errorf("cookie flags HttpOnly=%v Secure=%v, want HttpOnly on plain HTTP", cookie.HttpOnly, cookie.Secure)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)
	if got := sm.GetSessionFromRequest(req); got == nil || got.ID != session.ID {
		t.Errorf("GetSessionFromRequest() = %+v, want %s", got, session.ID)
	}
}

func TestSessionManager_InvalidCookie(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession("admin", "Admin", "Administrator")

	tests := []struct {
		name  string
		value string
	}{
		{"bad signature", session.ID + ".invalid-signature"},
		{"no signature", session.ID},
		{"other secret", session.ID + "." + NewSessionManager("other", nil).signData(session.ID)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: tt.value})
			if sm.GetSessionFromRequest(req) != nil {
				t.Error("GetSessionFromRequest() should return nil")
			}
		})
	}
}

func TestSessionManager_BearerAuth(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession("admin", "Admin", "Administrator")

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)
	if got := sm.GetSessionFromRequest(req); got == nil || got.ID != session.ID {
		t.Errorf("GetSessionFromRequest() = %+v", got)
	}

	req.Header.Set("Authorization", "Bearer ")
	if sm.GetSessionFromRequest(req) != nil {
		t.Error("empty Bearer token must not authenticate")
	}
}

func TestRequireAuth(t *testing.T) {
	sm := newTestManager(t, nil)
	session, _ := sm.CreateSession("admin", "Admin", "Administrator")

	handlerCalled := false
	protected := RequireAuth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if GetSessionFromContext(r.Context()) == nil {
			t.Error("Session not found in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid session", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+session.ID)

		protected.ServeHTTP(w, req)

		if w.Code != http.StatusOK || !handlerCalled {
			t.Errorf("Status = %d, called = %v", w.Code, handlerCalled)
		}
	})

	t.Run("no session", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()

		protected.ServeHTTP(w, httptest.NewRequest("GET", "/protected", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if handlerCalled {
			t.Error("Handler should not be called for unauthorized request")
		}
	})
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := RequireRole("Administrator")(ok)

	tests := []struct {
		name    string
		session *Session
		want    int
	}{
		{"admin", &Session{Role: "Administrator"}, http.StatusOK},
		{"user", &Session{Role: "User"}, http.StatusForbidden},
		{"no session", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.session != nil {
				req = req.WithContext(SetSessionInContext(req.Context(), tt.session))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestSessionManager_ClearSessionCookie(t *testing.T) {
	sm := newTestManager(t, nil)

	w := httptest.NewRecorder()
	sm.ClearSessionCookie(w)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName {
		t.Fatalf("cookies = %v", cookies)
	}
	if cookies[0].MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1 (expired)", cookies[0].MaxAge)
	}
}

func TestSession_MarshalJSON(t *testing.T) {
	session := &Session{ID: "test123", Username: "admin", Role: "Administrator", ExpiresAt: time.Now()}

	data, err := session.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	for _, want := range []string{`"session_id":"test123"`, `"username":"admin"`, `"role":"Administrator"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("JSON %s does not contain %s", data, want)
		}
	}
}
