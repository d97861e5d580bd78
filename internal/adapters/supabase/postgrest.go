package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"manimrender/internal/models"
	"manimrender/internal/pkg/errors"
)

// VideoStore implements ports.JobStore over PostgREST.
type VideoStore struct {
	c     *Client
	table string
}

func NewVideoStore(c *Client, table string) *VideoStore {
	if table == "" {
		table = "videos"
	}
	return &VideoStore{c: c, table: table}
}

func (s *VideoStore) restURL(query url.Values) string {
	return fmt.Sprintf("%s/rest/v1/%s?%s", s.c.baseURL, s.table, query.Encode())
}

// FetchPending lists videos with status generating and a script, limited.
func (s *VideoStore) FetchPending(ctx context.Context, limit int) ([]models.Video, error) {
	q := url.Values{}
	q.Set("status", "eq."+string(models.StatusGenerating))
	q.Set("manim_script", "not.is.null")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("select", "id,content_element_id,manim_script")

	var rows []models.Video
	err := s.c.doJSON(ctx, http.MethodGet, s.restURL(q), "postgrest.fetch", nil, &rows, http.StatusOK)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeFetch, "postgrest.fetch", "list pending videos")
	}
	return rows, nil
}

// Update patches the row with the given id.
func (s *VideoStore) Update(ctx context.Context, id string, u models.VideoUpdate) error {
	q := url.Values{}
	q.Set("id", "eq."+id)

	err := s.c.doJSON(ctx, http.MethodPatch, s.restURL(q), "postgrest.update", u.Fields(), nil,
		http.StatusOK, http.StatusNoContent)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeStatusUpdate, "postgrest.update", "update video "+id)
	}
	return nil
}
