package models

import "time"

// Placeholder values reported by the video source when page extraction fails.
const (
	UnknownVideoTitle   = "Unknown Video"
	UnknownChannelName  = "Unknown Channel"
	youtubeWatchURLBase = "https://www.youtube.com/watch?v="
)

type VideoMetadata struct {
	VideoID     string `json:"videoId"`
	Title       string `json:"title"`
	ChannelName string `json:"channelName"`
}

// URL returns the watch page for the video.
func (v VideoMetadata) URL() string {
	return youtubeWatchURLBase + v.VideoID
}

// Incomplete reports whether title or channel are missing or still the
// placeholder values.
func (v VideoMetadata) Incomplete() bool {
	return v.Title == "" || v.Title == UnknownVideoTitle ||
		v.ChannelName == "" || v.ChannelName == UnknownChannelName
}

// CachedVideoEntry is the per-video result of transcript fetch and speaker
// detection. Timestamp is the creation time in Unix milliseconds.
type CachedVideoEntry struct {
	VideoID    string    `json:"videoId"`
	Timestamp  int64     `json:"timestamp"`
	Transcript string    `json:"transcript"`
	Personas   []Persona `json:"personas"`
}

// CreatedAt converts Timestamp back to a time.Time.
func (e *CachedVideoEntry) CreatedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Age returns how old the entry is relative to now.
func (e *CachedVideoEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt())
}
