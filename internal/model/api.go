package model

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ReadyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type ReadyResponse struct {
	OK     bool         `json:"ok"`
	Checks []ReadyCheck `json:"checks"`
}

type TranscribeResponse struct {
	TranscribedText string `json:"transcribed_text"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}
