package equipment

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/nerrad567/astrobridge/internal/process"
)

// Command asks a device to perform one action.
type Command struct {
	RequestID string         `json:"request_id"`
	Device    string         `json:"device"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
}

// Result is the host's answer to a Command.
type Result struct {
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// ProgressFunc receives progress snapshots while a command runs.
type ProgressFunc func(snapshot any)

// Commander executes device commands.
//
// Execute blocks until the command completes. When ctx is cancelled it
// aborts the command and returns ctx.Err().
type Commander interface {
	Execute(ctx context.Context, cmd Command, progress ProgressFunc) error
}

// Logger is the logging surface the commanders need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// NewCommand builds the command for process type t with a fresh request ID.
func NewCommand(t process.Type, params map[string]any) Command {
	return Command{
		RequestID: uuid.NewString(),
		Device:    t.Device(),
		Action:    t.Action(),
		Params:    params,
	}
}

// NewWork returns process work that runs t's command on c. Every run gets
// its own request ID.
func NewWork(c Commander, t process.Type, params map[string]any) process.Work {
	return func(ctx context.Context, report process.ReportFunc) error {
		return c.Execute(ctx, NewCommand(t, params), ProgressFunc(report))
	}
}

// decodeProgress turns a progress payload into the snapshot type for the
// action. Actions without a typed snapshot yield nil.
func decodeProgress(action string, raw []byte) (any, error) {
	switch action {
	case process.AutoFocus.Action():
		var p process.AutoFocusProgress
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case process.MeridianFlip.Action():
		var p process.MeridianFlipProgress
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, nil
	}
}
