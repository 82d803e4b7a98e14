package live

type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
)

type StatusInfo struct {
	Status   Status `json:"status"`
	Speaking bool   `json:"speaking"`
	Error    string `json:"error,omitempty"`
}
