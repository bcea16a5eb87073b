package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDisabled means the video has captions turned off.
	ErrDisabled = errors.New("transcript is disabled on this video")
	// ErrNotFound means the video exposes no caption track to pick.
	ErrNotFound = errors.New("could not find a transcript for this video")
)

// Fetcher returns the plain text transcript of a video.
type Fetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

const (
	defaultBaseURL   = "https://www.youtube.com"
	userAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	innertubeClient  = "ANDROID"
	innertubeVersion = "20.10.38"
)

var innertubeKeyPattern = regexp.MustCompile(`"INNERTUBE_API_KEY":\s*"([a-zA-Z0-9_-]+)"`)

// YouTubeFetcher scrapes captions the way the watch page loads them: the
// page carries an innertube key, the player endpoint lists caption tracks,
// and each track is a timed-text XML document.
type YouTubeFetcher struct {
	client  *http.Client
	baseURL string
	lang    string
	log     logrus.FieldLogger
}

type Option func(*YouTubeFetcher)

// WithBaseURL points the fetcher at another host, typically a test server.
func WithBaseURL(baseURL string) Option {
	return func(f *YouTubeFetcher) { f.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(client *http.Client) Option {
	return func(f *YouTubeFetcher) { f.client = client }
}

// WithLanguage sets the preferred caption language. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(f *YouTubeFetcher) { f.lang = lang }
}

func NewYouTubeFetcher(log logrus.FieldLogger, opts ...Option) *YouTubeFetcher {
	f := &YouTubeFetcher{
		client:  &http.Client{},
		baseURL: defaultBaseURL,
		lang:    "en",
		log:     log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *YouTubeFetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	log := f.log.WithField("video_id", videoID)

	key, err := f.innertubeKey(ctx, videoID)
	if err != nil {
		return "", err
	}

	tracks, err := f.captionTracks(ctx, videoID, key)
	if err != nil {
		return "", err
	}

	track := pickTrack(tracks, f.lang)
	log.WithField("language", track.LanguageCode).Debug("Fetching caption track")

	segments, err := f.timedText(ctx, track.BaseURL)
	if err != nil {
		return "", err
	}
	if len(segments) == 0 {
		return "", ErrNotFound
	}

	return strings.TrimSpace(strings.Join(segments, " ")), nil
}

// innertubeKey loads the watch page and pulls the API key out of its inline
// scripts.
func (f *YouTubeFetcher) innertubeKey(ctx context.Context, videoID string) (string, error) {
	pageURL := fmt.Sprintf("%s/watch?v=%s", f.baseURL, url.QueryEscape(videoID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create watch page request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch watch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("YouTube is receiving too many requests from this IP")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("watch page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse watch page: %w", err)
	}

	if doc.Find(".g-recaptcha").Length() > 0 {
		return "", fmt.Errorf("YouTube is receiving too many requests from this IP")
	}

	var key string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := innertubeKeyPattern.FindStringSubmatch(s.Text()); m != nil {
			key = m[1]
			return false
		}
		return true
	})
	if key == "" {
		return "", fmt.Errorf("video %s is unavailable", videoID)
	}
	return key, nil
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		Renderer *struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

func (f *YouTubeFetcher) captionTracks(ctx context.Context, videoID, key string) ([]captionTrack, error) {
	body, err := json.Marshal(map[string]any{
		"context": map[string]any{
			"client": map[string]string{
				"clientName":    innertubeClient,
				"clientVersion": innertubeVersion,
			},
		},
		"videoId": videoID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode player request: %w", err)
	}

	playerURL := fmt.Sprintf("%s/youtubei/v1/player?key=%s", f.baseURL, url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, playerURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create player request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch player response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("player API returned status %d", resp.StatusCode)
	}

	var player playerResponse
	if err := json.NewDecoder(resp.Body).Decode(&player); err != nil {
		return nil, fmt.Errorf("failed to decode player response: %w", err)
	}

	if status := player.PlayabilityStatus.Status; status != "" && status != "OK" {
		return nil, fmt.Errorf("video %s is unavailable: %s", videoID, player.PlayabilityStatus.Reason)
	}
	if player.Captions == nil || player.Captions.Renderer == nil {
		return nil, ErrDisabled
	}
	if len(player.Captions.Renderer.CaptionTracks) == 0 {
		return nil, ErrNotFound
	}
	return player.Captions.Renderer.CaptionTracks, nil
}

// pickTrack prefers a track in lang, then the first track.
func pickTrack(tracks []captionTrack, lang string) captionTrack {
	for _, t := range tracks {
		if t.LanguageCode == lang || strings.HasPrefix(t.LanguageCode, lang+"-") {
			return t
		}
	}
	return tracks[0]
}

type timedTextDoc struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

func (f *YouTubeFetcher) timedText(ctx context.Context, trackURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create caption request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch captions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("caption track returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read captions: %w", err)
	}

	var doc timedTextDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode captions: %w", err)
	}

	segments := make([]string, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		// Caption text is entity-encoded twice: once by XML, once as HTML.
		text := strings.TrimSpace(html.UnescapeString(t.Value))
		if text != "" {
			segments = append(segments, text)
		}
	}
	return segments, nil
}
