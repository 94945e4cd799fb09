package models

// HistoryEntry is one saved route plan.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Origin      Place     `json:"origin"`
	Destination Place     `json:"destination"`
	Mode        string    `json:"mode"`
	SafetyScore float64   `json:"safetyScore"`
	Grade       string    `json:"grade"`
	CreatedAt   Timestamp `json:"createdAt"`
}

// HistoryList is the response for GET /v1/me/history.
type HistoryList struct {
	Items []HistoryEntry `json:"items"`
	Limit int            `json:"limit"`
}

// HistoryCleared is the response for DELETE /v1/me/history.
type HistoryCleared struct {
	Deleted int64 `json:"deleted"`
}
