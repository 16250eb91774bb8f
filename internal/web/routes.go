package web

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"github.com/kozaktomas/face-attendance/internal/web/static"
)

// Roles allowed to upload photos for identification. Test accounts are read-only.
var identifyRoles = []string{"Administrator", "User"}

func (s *Server) setupRoutes() {
	// Create handlers
	authHandler := handlers.NewAuthHandler(s.users, s.sessionManager)
	studentsHandler := handlers.NewStudentsHandler(s.services.Directory, s.services.Backend.Enrollments)
	attendanceHandler := handlers.NewAttendanceHandler(s.services.Backend.Attendance)
	identifyHandler := handlers.NewIdentifyHandler(s.config, s.services.Extractor, s.services.Backend.Enrollments, s.services.Index)
	configHandler := handlers.NewConfigHandler(s.config, s.services.Index)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.sessionManager))

			// Students
			r.Get("/students", studentsHandler.List)
			r.Get("/students/{id}", studentsHandler.Get)

			// Attendance
			r.Get("/attendance", attendanceHandler.List)
			r.Get("/attendance/stats", attendanceHandler.Stats)
			r.Get("/attendance/export", attendanceHandler.Export)

			// Config
			r.Get("/config", configHandler.Get)

			// Identify (read-only, never marks attendance)
			r.With(middleware.RequireRole(identifyRoles...)).Post("/identify", identifyHandler.Identify)
		})
	})

	// Serve static files for frontend (SPA)
	s.router.Get("/*", s.serveSPA)
}

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

// serveSPA serves the embedded dashboard. Unknown non-asset paths get index.html.
func (s *Server) serveSPA(w http.ResponseWriter, r *http.Request) {
	if !static.HasDist() {
		servePlaceholder(w)
		return
	}

	fs := static.GetFileSystem()
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	if serveFile(w, fs, path) {
		return
	}
	if strings.HasPrefix(path, "/assets/") || !serveFile(w, fs, "/index.html") {
		http.NotFound(w, r)
	}
}

// serveFile copies a regular file from fs to w. It reports false when there is no such file.
func serveFile(w http.ResponseWriter, fs http.FileSystem, path string) bool {
	f, err := fs.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		return false
	}

	contentType, ok := contentTypes[filepath.Ext(path)]
	if !ok {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if strings.HasPrefix(path, "/assets/") {
		w.Header().Set("Cache-Control", "public, max-age=86400")
	}
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
	return true
}

func servePlaceholder(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Face Attendance</title>
</head>
<body>
    <h1>Face Attendance</h1>
    <p>The dashboard is not bundled in this build.</p>
    <p>API is available at <a href="/api/v1/health">/api/v1/health</a></p>
</body>
</html>`))
}
