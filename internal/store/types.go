package store

import "time"

// CompileRecord captures the result of a compile.
type CompileRecord struct {
	Session   string    `json:"session,omitempty"`
	Board     string    `json:"board"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Duration  string    `json:"duration"`
	ExitCode  int       `json:"exit_code"`
	Errors    string    `json:"errors,omitempty"`
}

// UploadRecord captures the result of an upload.
type UploadRecord struct {
	Session    string    `json:"session,omitempty"`
	Board      string    `json:"board"`
	Target     string    `json:"target"`
	Artifact   string    `json:"artifact,omitempty"`
	Device     string    `json:"device"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	Duration   string    `json:"duration"`
	ToolFailed bool      `json:"tool_failed,omitempty"`
}

// MonitorRecord tracks a serial capture.
type MonitorRecord struct {
	Session   string    `json:"session,omitempty"`
	Board     string    `json:"board"`
	Device    string    `json:"device"`
	BaudRate  int       `json:"baud_rate"`
	Timestamp time.Time `json:"timestamp"`
	Duration  string    `json:"duration"`
	TimedOut  bool      `json:"timed_out"`
	Bytes     int       `json:"bytes"`
	LogFile   string    `json:"log_file,omitempty"`
}

// CleanupRecord captures one stop-firmware pass over all boards.
type CleanupRecord struct {
	Session   string    `json:"session,omitempty"`
	Pass      string    `json:"pass"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Duration  string    `json:"duration"`
	Failed    []string  `json:"failed,omitempty"`
}

// History is every record of the session.
type History struct {
	Compiles []CompileRecord `json:"compiles"`
	Uploads  []UploadRecord  `json:"uploads"`
	Monitors []MonitorRecord `json:"monitors"`
	Cleanups []CleanupRecord `json:"cleanups"`
}
