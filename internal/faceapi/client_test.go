package faceapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}

func TestDetectFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("path = %s, want /embed/face", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part Content-Type = %s, want image/jpeg", ct)
		}
		data, _ := io.ReadAll(file)
		if len(data) != len(jpegHeader) {
			t.Errorf("uploaded %d bytes, want %d", len(data), len(jpegHeader))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(FaceResponse{
			FacesCount: 2,
			Model:      "buffalo_l",
			Faces: []FaceDetection{
				{FaceIndex: 0, Dim: 3, Embedding: []float64{0.1, 0.2, 0.3}, BBox: []float64{10, 10, 50, 60}, DetScore: 0.98},
				{FaceIndex: 1, Dim: 3, Embedding: []float64{0.3, 0.2, 0.1}, BBox: []float64{100, 20, 130, 70}, DetScore: 0.81},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	resp, err := client.DetectFaces(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("DetectFaces() error = %v", err)
	}
	if resp.FacesCount != 2 || resp.Model != "buffalo_l" {
		t.Errorf("resp = %+v", resp)
	}

	obs := resp.Observations()
	if len(obs) != 2 {
		t.Fatalf("len(Observations()) = %d, want 2", len(obs))
	}
	if obs[1].DetScore != 0.81 || obs[1].BBox[2] != 130 || obs[1].Embedding[0] != 0.3 {
		t.Errorf("obs[1] = %+v", obs[1])
	}
}

func TestDetectFaces_NoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"faces_count": 0, "faces": [], "model": "buffalo_l"}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).DetectFaces(context.Background(), jpegHeader)
	if err != nil {
		t.Fatalf("DetectFaces() error = %v", err)
	}
	if resp.FacesCount != 0 || len(resp.Observations()) != 0 {
		t.Errorf("resp = %+v, want no faces", resp)
	}
}

func TestDetectFaces_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "model not loaded", wantMsg: "API error (status 500): model not loaded"},
		{name: "bad json", status: http.StatusOK, body: "{", wantMsg: "failed to parse response"},
		{name: "inconsistent", status: http.StatusOK, body: `{"faces_count": 2, "faces": []}`, wantMsg: "inconsistent response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).DetectFaces(context.Background(), jpegHeader)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestDetectFaces_EmptyImage(t *testing.T) {
	if _, err := NewClient("").DetectFaces(context.Background(), nil); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "jpeg", data: jpegHeader, want: "image/jpeg"},
		{name: "png", data: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, want: "image/png"},
		{name: "gif", data: []byte("GIF89a\x00\x00"), want: "image/gif"},
		{name: "short", data: []byte{0xFF}, want: "application/octet-stream"},
		{name: "text", data: []byte("hello world"), want: "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIMEType(tt.data); got != tt.want {
				t.Errorf("DetectMIMEType() = %s, want %s", got, tt.want)
			}
		})
	}
}
