// Package supabasetest provides an in-memory fake of the PostgREST and
// Storage endpoints the render job uses.
package supabasetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"manimrender/internal/models"
)

const ServiceKey = "test-service-key"

type Upload struct {
	Method      string
	Bucket      string
	Key         string
	ContentType string
	Body        []byte
}

type Patch struct {
	ID   string
	Body map[string]any
}

// Server records every call. Fail* fields inject HTTP errors and may be set
// before the first request.
type Server struct {
	*httptest.Server

	// FailFetch, when non-zero, is returned as the status of every GET.
	FailFetch int
	// FailPatch maps a video id to the status its PATCH answers with.
	FailPatch map[string]int
	// FailUpload maps an object key to the status both POST and PUT answer with.
	FailUpload map[string]int

	mu      sync.Mutex
	videos  []models.Video
	queries []string
	patches []Patch
	uploads []Upload
	objects map[string][]byte
}

func NewServer(videos ...models.Video) *Server {
	s := &Server{
		FailPatch:  map[string]int{},
		FailUpload: map[string]int{},
		videos:     videos,
		objects:    map[string][]byte{},
	}

	r := chi.NewRouter()
	r.Use(s.auth)
	r.Get("/rest/v1/{table}", s.listVideos)
	r.Patch("/rest/v1/{table}", s.patchVideo)
	r.Post("/storage/v1/object/{bucket}/*", s.putObject)
	r.Put("/storage/v1/object/{bucket}/*", s.putObject)

	s.Server = httptest.NewServer(r)
	return s
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != ServiceKey || r.Header.Get("Authorization") != "Bearer "+ServiceKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listVideos(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, r.URL.RawQuery)
	if s.FailFetch != 0 {
		writeJSON(w, s.FailFetch, map[string]string{"message": "fetch failed"})
		return
	}

	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil {
		limit = len(s.videos)
	}
	status := strings.TrimPrefix(q.Get("status"), "eq.")

	out := []map[string]any{}
	for _, v := range s.videos {
		if len(out) >= limit {
			break
		}
		// An empty script stands in for a null column.
		if string(v.Status) != status || v.ManimScript == "" {
			continue
		}
		out = append(out, map[string]any{
			"id":                 v.ID,
			"content_element_id": v.ContentElementID,
			"manim_script":       v.ManimScript,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) patchVideo(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.patches = append(s.patches, Patch{ID: id, Body: body})
	if code := s.FailPatch[id]; code != 0 {
		writeJSON(w, code, map[string]string{"message": "patch failed"})
		return
	}
	for i := range s.videos {
		if s.videos[i].ID == id {
			if st, ok := body["status"].(string); ok {
				s.videos[i].Status = models.Status(st)
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// putObject mimics Supabase: POST on an existing key is a 409, PUT overwrites.
func (s *Server) putObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.uploads = append(s.uploads, Upload{
		Method:      r.Method,
		Bucket:      bucket,
		Key:         key,
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
	})

	if code := s.FailUpload[key]; code != 0 {
		writeJSON(w, code, map[string]string{"message": "upload failed"})
		return
	}

	path := bucket + "/" + key
	if _, exists := s.objects[path]; exists && r.Method == http.MethodPost {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Duplicate", "message": "The resource already exists"})
		return
	}
	s.objects[path] = body
	writeJSON(w, http.StatusOK, map[string]string{"Key": path})
}

// Seed stores an object as if it had been uploaded earlier.
func (s *Server) Seed(bucket, key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = body
}

func (s *Server) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+key]
	return b, ok
}

func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func (s *Server) Patches() []Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Patch(nil), s.patches...)
}

// PatchesFor returns the patches sent for one video id, in order.
func (s *Server) PatchesFor(id string) []Patch {
	var out []Patch
	for _, p := range s.Patches() {
		if p.ID == id {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *Server) Status(id string) models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.videos {
		if v.ID == id {
			return v.Status
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
