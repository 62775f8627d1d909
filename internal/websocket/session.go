package websocket

import (
	"encoding/json"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"

	"github.com/drumextract/api/internal/model"
	"github.com/drumextract/api/internal/task"
)

const pingInterval = 30 * time.Second

// Conn is the subset of the websocket connection the session loop uses,
// abstracted so the protocol can be tested without a live upgrade.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
}

// Orchestrator is what a session needs to drive stages.
type Orchestrator interface {
	StartSeparation(t *task.Task) bool
	StartTranscription(t *task.Task, onset, frame float64) bool
	Cancel(t *task.Task) bool
}

// Handler runs the per-connection session protocol: one loop multiplexing
// task change notifications against inbound client commands, pushing a state
// snapshot on every wake. Background stage execution is owned by the
// orchestrator, so a dropped connection never affects processing.
type Handler struct {
	registry *task.Registry
	orch     Orchestrator
	validate *validator.Validate
}

// NewHandler constructs a session handler.
func NewHandler(reg *task.Registry, orch Orchestrator, validate *validator.Validate) *Handler {
	return &Handler{registry: reg, orch: orch, validate: validate}
}

// Handle serves one connection bound to one task id until a terminal
// snapshot is sent or the client goes away.
func (h *Handler) Handle(c Conn, taskID string) {
	t, ok := h.registry.Get(taskID)
	if !ok {
		_ = c.WriteJSON(model.WSErrorMessage{Error: "Unknown task"})
		return
	}

	// Kick off stage one for a fresh task. BeginStage's compare-and-swap
	// means a second connection to the same task is a no-op here.
	h.orch.StartSeparation(t)

	done := make(chan struct{})
	defer close(done)
	commands := make(chan model.WSCommand)
	go h.readLoop(c, commands, done)

	pings := time.NewTicker(pingInterval)
	defer pings.Stop()

	for {
		// Grab the change channel before snapshotting so a mutation
		// between the two never goes unobserved.
		changed := t.Changed()
		snap := t.Snapshot()

		if err := c.WriteJSON(h.snapshotMessage(taskID, snap)); err != nil {
			return
		}
		if snap.Status.Terminal() {
			return
		}

		select {
		case <-changed:
			// Re-snapshot.

		case cmd, ok := <-commands:
			if !ok {
				return // client disconnected
			}
			if h.dispatch(t, cmd) {
				// cancel: one final snapshot, then close.
				_ = c.WriteJSON(h.snapshotMessage(taskID, t.Snapshot()))
				return
			}

		case <-pings.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch applies one client command. It returns true when the session
// should end after a final snapshot.
func (h *Handler) dispatch(t *task.Task, cmd model.WSCommand) bool {
	switch cmd.Command {
	case model.WSCommandStartMIDI:
		if err := h.validate.Struct(&cmd); err != nil {
			log.Printf("Ignoring start_midi with invalid thresholds for task %s: %v", t.ID, err)
			return false
		}
		onset := model.DefaultOnsetThreshold
		if cmd.Onset != nil {
			onset = *cmd.Onset
		}
		frame := model.DefaultFrameThreshold
		if cmd.Frame != nil {
			frame = *cmd.Frame
		}
		h.orch.StartTranscription(t, onset, frame)
		return false

	case model.WSCommandCancel:
		h.orch.Cancel(t)
		return true

	default:
		// Unrecognized commands are ignored, not fatal.
		return false
	}
}

// readLoop pumps inbound frames into the command channel. Malformed frames
// are skipped; a read error ends the loop and closes the channel.
func (h *Handler) readLoop(c Conn, commands chan<- model.WSCommand, done <-chan struct{}) {
	defer close(commands)
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		var cmd model.WSCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		select {
		case commands <- cmd:
		case <-done:
			return
		}
	}
}

func (h *Handler) snapshotMessage(taskID string, snap task.Snapshot) model.WSSnapshot {
	msg := model.WSSnapshot{
		TaskID:   taskID,
		Status:   snap.Status,
		Progress: snap.Progress,
	}
	switch snap.Status {
	case model.TaskStatusAwaitingMIDI:
		msg.DrumURL = "/preview/" + taskID
	case model.TaskStatusComplete:
		msg.Complete = true
		msg.DrumURL = "/download/drums/" + taskID
		msg.MidiURL = "/download/midi/" + taskID
	case model.TaskStatusFailed:
		msg.Error = snap.Error
	}
	return msg
}
