package model

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error     APIError `json:"error"`
	VideoID   string   `json:"video_id,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool   `json:"ok"`
	ServiceName string `json:"service_name,omitempty"`
	Model       string `json:"model,omitempty"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type SummaryRequest struct {
	Input string `json:"input"`
}

type SummaryTimings struct {
	Transcript int64 `json:"transcript"`
	Summary    int64 `json:"summary"`
	Total      int64 `json:"total"`
}

type SummaryResponse struct {
	VideoID   string         `json:"video_id"`
	Summary   string         `json:"summary"`
	Usage     *TokenUsage    `json:"usage,omitempty"`
	TimingsMS SummaryTimings `json:"timings_ms"`
}
