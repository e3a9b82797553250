package youtube

import (
	"errors"
	"fmt"
)

var (
	ErrVideoUnavailable    = errors.New("the video is no longer available")
	ErrInvalidVideoID      = errors.New("you provided an invalid video id; pass the ID, not the URL")
	ErrTranscriptsDisabled = errors.New("subtitles are disabled for this video")
	ErrNoTranscriptFound   = errors.New("no transcripts were found for any of the requested language codes")
	ErrRequestBlocked      = errors.New("YouTube is blocking requests from this IP")
	ErrAgeRestricted       = errors.New("this video is age-restricted and requires authentication")
	ErrVideoUnplayable     = errors.New("the video is unplayable")
	ErrPoTokenRequired     = errors.New("the requested transcript requires a PO token")
	ErrConsentFailed       = errors.New("failed to automatically give consent to saving cookies")
)

// Error reports a transcript retrieval failure for one video. Kind is one of
// the sentinel errors above and is matched with errors.Is.
type Error struct {
	Kind    error
	VideoID string
	Detail  string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v (%s)", e.Kind, e.VideoID)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// HTTPError is returned for unexpected non-2xx responses from YouTube.
type HTTPError struct {
	Endpoint   string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("youtube %s request failed with status %d", e.Endpoint, e.StatusCode)
}
