package model

// Stage identifies which phase of the pipeline a progress event belongs to.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageSeparation Stage = "separation"
	StageMIDI       Stage = "midi_conversion"
	StageComplete   Stage = "complete"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending      TaskStatus = "pending"
	TaskStatusProcessing   TaskStatus = "processing"
	TaskStatusAwaitingMIDI TaskStatus = "awaiting_midi"
	TaskStatusComplete     TaskStatus = "complete"
	TaskStatusFailed       TaskStatus = "failed"
	TaskStatusCancelled    TaskStatus = "cancelled"
)

// Terminal reports whether no further transitions can occur.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusComplete || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Progress is a point-in-time snapshot emitted by a running stage. Values are
// replaced wholesale, never mutated in place.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// StatusResponse is returned by GET /status/:task_id. The URL fields stay
// null until the corresponding stage has produced its artifact.
type StatusResponse struct {
	Status   TaskStatus `json:"status"`
	Progress Progress   `json:"progress"`
	MidiURL  *string    `json:"midi_url"`
	DrumURL  *string    `json:"drum_url"`
	Error    *string    `json:"error"`
}

// DeleteResponse is returned by DELETE /task/:task_id.
type DeleteResponse struct {
	Status string `json:"status"`
}
