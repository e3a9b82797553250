// Package videoid pulls a YouTube video ID out of user input.
package videoid

import "regexp"

var pattern = regexp.MustCompile(`(?:https?://)?(?:www\.)?youtu(?:\.be|be\.com)/(?:watch\?v=|embed/|v/|.+\?v=)?([^&\n?#]+)`)

// Extract returns the video ID found in a YouTube URL. Input that does not look
// like a YouTube URL is returned as is and treated as a raw ID.
func Extract(input string) string {
	if m := pattern.FindStringSubmatch(input); m != nil {
		return m[1]
	}
	return input
}
