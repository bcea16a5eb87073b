package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"backstage/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watchPage = `<!DOCTYPE html><html><head><title>video</title></head><body>
<script>var ytInitialData = {};</script>
<script>ytcfg.set({"INNERTUBE_API_KEY":"AIzaTestKey_123","INNERTUBE_CONTEXT_CLIENT_NAME":1});</script>
</body></html>`

const captionXML = `<?xml version="1.0" encoding="utf-8" ?><transcript>
<text start="0.0" dur="1.5">Hello &amp;#39;world&amp;#39;</text>
<text start="1.5" dur="2.0">  this is   </text>
<text start="3.5" dur="1.0"></text>
<text start="4.5" dur="1.0">a test</text>
</transcript>`

// youtubeStub serves the three endpoints the fetcher walks through. player
// is the JSON body of the player response; an empty string means "use the
// default with two tracks".
type youtubeStub struct {
	page       string
	pageStatus int
	player     string
	captions   string

	playerBody map[string]any
	playerKey  string
}

func (s *youtubeStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/watch":
			if s.pageStatus != 0 {
				w.WriteHeader(s.pageStatus)
				return
			}
			fmt.Fprint(w, s.page)
		case "/youtubei/v1/player":
			s.playerKey = r.URL.Query().Get("key")
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &s.playerBody)
			player := s.player
			if player == "" {
				player = fmt.Sprintf(`{"playabilityStatus":{"status":"OK"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[
					{"baseUrl":"%[1]s/api/timedtext?lang=de","languageCode":"de"},
					{"baseUrl":"%[1]s/api/timedtext?lang=en","languageCode":"en"}]}}}`, srv.URL)
			}
			fmt.Fprint(w, player)
		case "/api/timedtext":
			if r.URL.Query().Get("lang") != "en" {
				fmt.Fprint(w, `<transcript><text start="0" dur="1">Hallo</text></transcript>`)
				return
			}
			fmt.Fprint(w, s.captions)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchJoinsSegments(t *testing.T) {
	stub := &youtubeStub{page: watchPage, captions: captionXML}
	srv := stub.server(t)
	f := NewYouTubeFetcher(logger.Discard(), WithBaseURL(srv.URL))

	text, err := f.Fetch(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Hello 'world' this is a test", text)

	assert.Equal(t, "AIzaTestKey_123", stub.playerKey)
	assert.Equal(t, "dQw4w9WgXcQ", stub.playerBody["videoId"])
}

func TestFetchFallsBackToFirstTrack(t *testing.T) {
	stub := &youtubeStub{page: watchPage, captions: captionXML}
	srv := stub.server(t)
	f := NewYouTubeFetcher(logger.Discard(), WithBaseURL(srv.URL), WithLanguage("fr"))

	text, err := f.Fetch(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Hallo", text)
}

func TestFetchClassifiesFailures(t *testing.T) {
	tests := []struct {
		name         string
		stub         *youtubeStub
		wantSentinel error
		wantText     string
	}{
		{
			name:         "captions missing",
			stub:         &youtubeStub{page: watchPage, player: `{"playabilityStatus":{"status":"OK"}}`},
			wantSentinel: ErrDisabled,
		},
		{
			name:         "no caption tracks",
			stub:         &youtubeStub{page: watchPage, player: `{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[]}}}`},
			wantSentinel: ErrNotFound,
		},
		{
			name:     "video unplayable",
			stub:     &youtubeStub{page: watchPage, player: `{"playabilityStatus":{"status":"ERROR","reason":"Video unavailable"}}`},
			wantText: "Video unavailable",
		},
		{
			name:     "rate limited",
			stub:     &youtubeStub{pageStatus: http.StatusTooManyRequests},
			wantText: "too many requests",
		},
		{
			name:     "captcha page",
			stub:     &youtubeStub{page: `<html><body><div class="g-recaptcha"></div></body></html>`},
			wantText: "too many requests",
		},
		{
			name:     "no innertube key",
			stub:     &youtubeStub{page: `<html><body><script>var x = 1;</script></body></html>`},
			wantText: "unavailable",
		},
		{
			name:     "server error",
			stub:     &youtubeStub{pageStatus: http.StatusInternalServerError},
			wantText: "status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := tt.stub.server(t)
			f := NewYouTubeFetcher(logger.Discard(), WithBaseURL(srv.URL))

			_, err := f.Fetch(context.Background(), "vid")
			require.Error(t, err)
			if tt.wantSentinel != nil {
				assert.ErrorIs(t, err, tt.wantSentinel)
				return
			}
			assert.NotErrorIs(t, err, ErrDisabled)
			assert.NotErrorIs(t, err, ErrNotFound)
			assert.Contains(t, err.Error(), tt.wantText)
		})
	}
}

func TestFetchBoundedByCallerContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	f := NewYouTubeFetcher(logger.Discard(), WithBaseURL(srv.URL))
	assert.Zero(t, f.client.Timeout)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, "vid")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchEmptyCaptionsIsNotFound(t *testing.T) {
	stub := &youtubeStub{page: watchPage, captions: `<transcript></transcript>`}
	srv := stub.server(t)
	f := NewYouTubeFetcher(logger.Discard(), WithBaseURL(srv.URL))

	_, err := f.Fetch(context.Background(), "vid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPickTrack(t *testing.T) {
	tracks := []captionTrack{{LanguageCode: "es"}, {LanguageCode: "en-GB"}, {LanguageCode: "en"}}
	assert.Equal(t, "en-GB", pickTrack(tracks, "en").LanguageCode)
	assert.Equal(t, "es", pickTrack(tracks, "ja").LanguageCode)
}

func TestTruncate(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "short.", Truncate("short.", 100))
		s := strings.Repeat("a", 100)
		assert.Equal(t, s, Truncate(s, 100))
	})

	t.Run("cuts at late sentence end", func(t *testing.T) {
		s := strings.Repeat("a", 89) + "." + strings.Repeat("b", 50)
		got := Truncate(s, 100)
		assert.Equal(t, strings.Repeat("a", 89)+".\n\n[Transcript truncated for length]", got)
	})

	t.Run("early period ignored", func(t *testing.T) {
		s := strings.Repeat("a", 50) + "." + strings.Repeat("b", 100)
		got := Truncate(s, 100)
		assert.Equal(t, s[:100]+"...\n\n[Transcript truncated for length]", got)
	})

	t.Run("multibyte text within budget unchanged", func(t *testing.T) {
		s := strings.Repeat("日本語の字幕", 1500)
		require.Greater(t, len(s), DefaultMaxChars)
		assert.Equal(t, s, Truncate(s, DefaultMaxChars))
	})

	t.Run("cut never splits a character", func(t *testing.T) {
		s := "a" + strings.Repeat("é", 20)
		got := Truncate(s, 10)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, "a"+strings.Repeat("é", 9)+"...\n\n[Transcript truncated for length]", got)
	})

	t.Run("sentence end counted in characters", func(t *testing.T) {
		s := strings.Repeat("ü", 89) + "." + strings.Repeat("ö", 50)
		got := Truncate(s, 100)
		assert.Equal(t, strings.Repeat("ü", 89)+".\n\n[Transcript truncated for length]", got)
	})

	t.Run("period exactly at boundary ignored", func(t *testing.T) {
		s := strings.Repeat("a", 80) + "." + strings.Repeat("b", 100)
		got := Truncate(s, 100)
		assert.True(t, strings.HasSuffix(got, "...\n\n[Transcript truncated for length]"))
	})
}
