// Package youtube fetches caption tracks for a video through the same
// endpoints the YouTube web and Android players use.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://www.youtube.com"

	innertubeClientName    = "ANDROID"
	innertubeClientVersion = "20.10.38"
	maxResponseBytes       = 8 << 20
)

var (
	apiKeyPattern     = regexp.MustCompile(`"INNERTUBE_API_KEY":\s*"([a-zA-Z0-9_-]+)"`)
	consentPattern    = regexp.MustCompile(`name="v" value="(.*?)"`)
	captionTagPattern = regexp.MustCompile(`<[^>]*>`)
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

// Fragment is one timed caption line.
type Fragment struct {
	Text     string
	Start    float64
	Duration float64
}

type Transcript struct {
	VideoID      string
	Language     string
	LanguageCode string
	Generated    bool
	Fragments    []Fragment
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   ObserverFunc
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithBaseURL points the client at a different host, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithRateLimit throttles every outbound request to YouTube.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func New(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: httpClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Fetch returns the captions of videoID in the first language of languages
// that has a track. Manually created tracks win over generated ones.
func (c *Client) Fetch(ctx context.Context, videoID string, languages []string) (Transcript, error) {
	page, err := c.fetchWatchPage(ctx, videoID)
	if err != nil {
		return Transcript{}, err
	}

	apiKey, err := extractAPIKey(page, videoID)
	if err != nil {
		return Transcript{}, err
	}

	player, err := c.fetchPlayer(ctx, videoID, apiKey)
	if err != nil {
		return Transcript{}, err
	}
	if err := player.PlayabilityStatus.check(videoID); err != nil {
		return Transcript{}, err
	}

	tracks := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return Transcript{}, &Error{Kind: ErrTranscriptsDisabled, VideoID: videoID}
	}

	track, err := selectTrack(videoID, tracks, languages)
	if err != nil {
		return Transcript{}, err
	}
	if strings.Contains(track.BaseURL, "&exp=xpe") {
		return Transcript{}, &Error{Kind: ErrPoTokenRequired, VideoID: videoID}
	}

	fragments, err := c.fetchTimedText(ctx, c.resolve(strings.Replace(track.BaseURL, "&fmt=srv3", "", 1)))
	if err != nil {
		return Transcript{}, err
	}

	return Transcript{
		VideoID:      videoID,
		Language:     track.Name.text(),
		LanguageCode: track.LanguageCode,
		Generated:    track.generated(),
		Fragments:    fragments,
	}, nil
}

func (c *Client) fetchWatchPage(ctx context.Context, videoID string) (string, error) {
	page, err := c.watchPage(ctx, videoID, "")
	if err != nil {
		return "", err
	}
	if !isConsentPage(page) {
		return page, nil
	}

	m := consentPattern.FindStringSubmatch(page)
	if m == nil {
		return "", &Error{Kind: ErrConsentFailed, VideoID: videoID}
	}
	page, err = c.watchPage(ctx, videoID, "CONSENT=YES+"+m[1])
	if err != nil {
		return "", err
	}
	if isConsentPage(page) {
		return "", &Error{Kind: ErrConsentFailed, VideoID: videoID}
	}
	return page, nil
}

func (c *Client) watchPage(ctx context.Context, videoID, cookie string) (string, error) {
	u := c.baseURL + "/watch?v=" + url.QueryEscape(videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept-Language", "en-US")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	body, err := c.do(req, "youtube_watch", videoID)
	if err != nil {
		return "", err
	}
	return html.UnescapeString(string(body)), nil
}

func (c *Client) fetchPlayer(ctx context.Context, videoID, apiKey string) (playerResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"context": map[string]any{
			"client": map[string]string{
				"clientName":    innertubeClientName,
				"clientVersion": innertubeClientVersion,
			},
		},
		"videoId": videoID,
	})
	if err != nil {
		return playerResponse{}, err
	}

	u := c.baseURL + "/youtubei/v1/player?key=" + url.QueryEscape(apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return playerResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "en-US")

	body, err := c.do(req, "youtube_player", videoID)
	if err != nil {
		return playerResponse{}, err
	}

	var parsed playerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return playerResponse{}, fmt.Errorf("invalid player response: %w", err)
	}
	return parsed, nil
}

func (c *Client) fetchTimedText(ctx context.Context, u string) ([]Fragment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", "en-US")

	body, err := c.do(req, "youtube_timedtext", "")
	if err != nil {
		return nil, err
	}
	return parseTimedText(body)
}

// do sends req through the limiter and returns the body of a 2xx response.
func (c *Client) do(req *http.Request, endpoint, videoID string) ([]byte, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe(endpoint, statusCode, time.Since(started)) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: ErrRequestBlocked, VideoID: videoID}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}
	return body, nil
}

func (c *Client) resolve(u string) string {
	if strings.HasPrefix(u, "/") {
		return c.baseURL + u
	}
	return u
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func isConsentPage(page string) bool {
	return strings.Contains(page, `action="https://consent.youtube.com/s"`)
}

func extractAPIKey(page, videoID string) (string, error) {
	if m := apiKeyPattern.FindStringSubmatch(page); m != nil {
		return m[1], nil
	}
	if strings.Contains(page, `class="g-recaptcha"`) {
		return "", &Error{Kind: ErrRequestBlocked, VideoID: videoID}
	}
	return "", &Error{Kind: ErrVideoUnavailable, VideoID: videoID, Detail: "player API key not found"}
}

type playerResponse struct {
	PlayabilityStatus playabilityStatus `json:"playabilityStatus"`
	Captions          struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type playabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (p playabilityStatus) check(videoID string) error {
	switch p.Status {
	case "", "OK":
		return nil
	case "LOGIN_REQUIRED":
		if strings.Contains(p.Reason, "not a bot") {
			return &Error{Kind: ErrRequestBlocked, VideoID: videoID}
		}
		if strings.Contains(p.Reason, "inappropriate for some users") {
			return &Error{Kind: ErrAgeRestricted, VideoID: videoID}
		}
	case "ERROR":
		if p.Reason == "This video is unavailable" {
			if strings.HasPrefix(videoID, "http://") || strings.HasPrefix(videoID, "https://") {
				return &Error{Kind: ErrInvalidVideoID, VideoID: videoID}
			}
			return &Error{Kind: ErrVideoUnavailable, VideoID: videoID}
		}
	}
	return &Error{Kind: ErrVideoUnplayable, VideoID: videoID, Detail: p.Reason}
}

type captionTrack struct {
	BaseURL      string    `json:"baseUrl"`
	Name         trackName `json:"name"`
	LanguageCode string    `json:"languageCode"`
	Kind         string    `json:"kind"`
}

func (t captionTrack) generated() bool {
	return t.Kind == "asr"
}

type trackName struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

func (n trackName) text() string {
	if n.SimpleText != "" {
		return n.SimpleText
	}
	var b strings.Builder
	for _, r := range n.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

func selectTrack(videoID string, tracks []captionTrack, languages []string) (captionTrack, error) {
	for _, lang := range languages {
		var generated *captionTrack
		for i := range tracks {
			if tracks[i].LanguageCode != lang {
				continue
			}
			if !tracks[i].generated() {
				return tracks[i], nil
			}
			if generated == nil {
				generated = &tracks[i]
			}
		}
		if generated != nil {
			return *generated, nil
		}
	}

	available := make([]string, 0, len(tracks))
	for _, t := range tracks {
		available = append(available, t.LanguageCode)
	}
	return captionTrack{}, &Error{
		Kind:    ErrNoTranscriptFound,
		VideoID: videoID,
		Detail:  fmt.Sprintf("requested %s; available %s", strings.Join(languages, ", "), strings.Join(available, ", ")),
	}
}

type timedTextDocument struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

func parseTimedText(data []byte) ([]Fragment, error) {
	var doc timedTextDocument
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid timedtext response: %w", err)
	}

	fragments := make([]Fragment, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		text := plainText(t.Body)
		if text == "" {
			continue
		}
		fragments = append(fragments, Fragment{
			Text:     text,
			Start:    parseSeconds(t.Start),
			Duration: parseSeconds(t.Dur),
		})
	}
	return fragments, nil
}

// plainText drops complete tags such as <font> and <i> from a caption line
// and decodes the entities YouTube escapes a second time. A "<" with no
// closing ">" is caption text and is kept.
func plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(captionTagPattern.ReplaceAllString(s, "")))
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
