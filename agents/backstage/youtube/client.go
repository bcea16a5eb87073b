// Package youtube resolves video titles and channel names through the
// YouTube Data API.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"backstage/internal/models"
	"backstage/shared/config"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const readonlyScope = "https://www.googleapis.com/auth/youtube.readonly"

// ErrVideoNotFound is returned when the API knows no video with the id.
var ErrVideoNotFound = errors.New("video not found")

type Client struct {
	service *youtube.Service
	log     logrus.FieldLogger
}

// NewClient authenticates with the API key when one is set, otherwise with
// the OAuth client, running the device flow if no usable token is saved.
// opts are passed to the service after the credentials.
func NewClient(ctx context.Context, cfg config.YouTubeConfig, log logrus.FieldLogger, opts ...option.ClientOption) (*Client, error) {
	var clientOpts []option.ClientOption

	switch {
	case cfg.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	case cfg.ClientID != "" && cfg.ClientSecret != "":
		oauthConfig := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{readonlyScope},
			Endpoint:     google.Endpoint,
		}

		token, err := getToken(ctx, oauthConfig, cfg.TokenFile, log)
		if err != nil {
			return nil, fmt.Errorf("failed to get OAuth token: %w", err)
		}

		// Refreshed tokens are written back to disk.
		tokenSource := &tokenSaver{
			config:    oauthConfig,
			token:     token,
			tokenFile: cfg.TokenFile,
			log:       log,
		}
		clientOpts = append(clientOpts, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	default:
		return nil, errors.New("YouTube API key or OAuth client is required")
	}

	service, err := youtube.NewService(ctx, append(clientOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	return &Client{service: service, log: log}, nil
}

// Resolve returns the title and channel of videoID.
func (c *Client) Resolve(ctx context.Context, videoID string) (models.VideoMetadata, error) {
	resp, err := c.service.Videos.List([]string{"snippet"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return models.VideoMetadata{}, fmt.Errorf("failed to get video details for %s: %w", videoID, err)
	}

	for _, item := range resp.Items {
		if item.Id != videoID || item.Snippet == nil {
			continue
		}
		c.log.WithFields(logrus.Fields{"video_id": videoID, "title": item.Snippet.Title}).Debug("Resolved video metadata")
		return models.VideoMetadata{
			VideoID:     videoID,
			Title:       item.Snippet.Title,
			ChannelName: item.Snippet.ChannelTitle,
		}, nil
	}
	return models.VideoMetadata{}, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
}

// tokenSaver is an oauth2.TokenSource that persists every refreshed token.
type tokenSaver struct {
	config    *oauth2.Config
	token     *oauth2.Token
	tokenFile string
	log       logrus.FieldLogger
	mu        sync.Mutex
}

func (ts *tokenSaver) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	newToken, err := ts.config.TokenSource(context.Background(), ts.token).Token()
	if err != nil {
		return nil, err
	}

	if newToken.AccessToken != ts.token.AccessToken {
		ts.log.Info("Token refreshed, saving to file")
		ts.token = newToken
		if err := saveToken(ts.tokenFile, newToken); err != nil {
			ts.log.WithError(err).Warn("Failed to save refreshed token")
		}
	}

	return newToken, nil
}

// getToken prefers a saved token. An expired one is still used when it
// carries a refresh token; otherwise the device flow runs.
func getToken(ctx context.Context, config *oauth2.Config, tokenFile string, log logrus.FieldLogger) (*oauth2.Token, error) {
	tok, err := tokenFromFile(tokenFile)
	if err == nil {
		if tok.RefreshToken != "" {
			log.WithField("expiry", tok.Expiry).Info("Loaded token from file")
			return tok, nil
		}
		if tok.Valid() {
			return tok, nil
		}
	}

	log.Info("Getting new token with device authorization")
	tok, err = getTokenWithDeviceFlow(ctx, config)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			log.Errorf("Device authorization response failed (%s): %s", retrieveErr.Response.Status, strings.TrimSpace(string(retrieveErr.Body)))
		}
		return nil, fmt.Errorf("device authorization failed: %w. Ensure your OAuth client is created as 'TVs and Limited Input devices' and that the YouTube Data API v3 is enabled", err)
	}

	if err := saveToken(tokenFile, tok); err != nil {
		log.WithError(err).Warn("Failed to save token")
	}
	return tok, nil
}

func getTokenWithDeviceFlow(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	resp, err := config.DeviceAuth(ctx, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("unable to start device authorization: %w", err)
	}

	rule := strings.Repeat("=", 80)
	fmt.Printf("\n%s\nYOUTUBE DEVICE AUTHORIZATION REQUIRED\n%s\n", rule, rule)
	fmt.Printf("1. Visit %s in your browser (any device works).\n", resp.VerificationURI)
	fmt.Printf("2. Enter this code when prompted: %s\n\n", resp.UserCode)
	if completeURL := strings.TrimSpace(resp.VerificationURIComplete); completeURL != "" {
		fmt.Printf("   Or open directly: %s\n\n", completeURL)
	}
	fmt.Printf("Waiting for authorization to complete... (Ctrl+C to cancel)\n")

	tok, err := config.DeviceAccessToken(ctx, resp, oauth2.AccessTypeOffline)
	if err != nil {
		return nil, fmt.Errorf("device authorization did not complete: %w", err)
	}

	fmt.Printf("\nAuthorization successful.\n%s\n\n", rule)
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to create token directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode oauth token: %w", err)
	}
	return nil
}
