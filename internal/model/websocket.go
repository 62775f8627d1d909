package model

// Client commands accepted over the processing socket.
const (
	WSCommandStartMIDI = "start_midi"
	WSCommandCancel    = "cancel"
)

// Default thresholds applied when a start_midi command omits them.
const (
	DefaultOnsetThreshold = 0.5
	DefaultFrameThreshold = 0.3
)

// WSCommand is a client-to-server message. Unrecognized commands are ignored.
type WSCommand struct {
	Command string   `json:"command"`
	Onset   *float64 `json:"onset,omitempty" validate:"omitempty,gte=0,lte=1"`
	Frame   *float64 `json:"frame,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// WSSnapshot is a server-to-client state snapshot. One is pushed on every
// task change; the connection closes after a terminal snapshot.
type WSSnapshot struct {
	TaskID   string     `json:"task_id"`
	Status   TaskStatus `json:"status"`
	Progress Progress   `json:"progress"`
	Complete bool       `json:"complete,omitempty"`
	DrumURL  string     `json:"drum_url,omitempty"`
	MidiURL  string     `json:"midi_url,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// WSErrorMessage rejects a connection bound to an unknown task id.
type WSErrorMessage struct {
	Error string `json:"error"`
}
