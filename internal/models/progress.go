package models

// ProgressUpdate is broadcast over the websocket hub whenever a task or a
// transfer changes state.
type ProgressUpdate struct {
	Source   string  `json:"source"` // "tasks" or "downloads"
	ItemID   string  `json:"item_id"`
	Message  string  `json:"message"`
	Status   string  `json:"status"` // e.g. "running", "completed", "failed"
	Progress float64 `json:"progress"`
	Done     bool    `json:"done"`
}
