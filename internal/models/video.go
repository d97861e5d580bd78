package models

// Status is the lifecycle state of a video row.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further processing happens after s is set.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Video is one row of the videos table awaiting (or done with) rendering.
type Video struct {
	ID               string  `json:"id"`
	ContentElementID string  `json:"content_element_id,omitempty"`
	ManimScript      string  `json:"manim_script"`
	Status           Status  `json:"status,omitempty"`
	VideoURL         *string `json:"video_url,omitempty"`
	ThumbnailURL     *string `json:"thumbnail_url,omitempty"`
	DurationSeconds  *int    `json:"duration_seconds,omitempty"`
}

// VideoUpdate is the partial update written once a job reaches a terminal
// status.
type VideoUpdate struct {
	Status          Status
	VideoURL        string
	ThumbnailURL    string
	DurationSeconds int
}

// Ready builds the success update. An empty thumbURL is written as null.
func Ready(videoURL, thumbURL string, duration int) VideoUpdate {
	return VideoUpdate{
		Status:          StatusReady,
		VideoURL:        videoURL,
		ThumbnailURL:    thumbURL,
		DurationSeconds: duration,
	}
}

// Failed builds the failure update.
func Failed() VideoUpdate {
	return VideoUpdate{Status: StatusFailed}
}

// Fields returns the column/value pairs to write. A failed update touches
// status only; a ready update always sets all four result columns.
func (u VideoUpdate) Fields() map[string]any {
	if u.Status != StatusReady {
		return map[string]any{"status": string(u.Status)}
	}

	var thumb any
	if u.ThumbnailURL != "" {
		thumb = u.ThumbnailURL
	}

	return map[string]any{
		"video_url":        u.VideoURL,
		"thumbnail_url":    thumb,
		"duration_seconds": u.DurationSeconds,
		"status":           string(u.Status),
	}
}
