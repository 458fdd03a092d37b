package handoff

import (
	"github.com/crystaldolphin/taskdeck/internal/rerun"
	"github.com/crystaldolphin/taskdeck/internal/source"
	"github.com/crystaldolphin/taskdeck/internal/task"
)

// Request types.
const (
	TypeList     = "list"
	TypePrepare  = "prepare"
	TypeOneshot  = "oneshot"
	TypeFinished = "finished"
	TypeRefresh  = "refresh"
	TypeRerun    = "rerun"
	TypeRuns     = "runs"
	TypeError    = "error"
)

// Error codes beyond the preparation results of the metrics package.
const (
	CodeBadRequest = "bad_request"
	CodeNotFound   = "not_found"
	CodeDuplicate  = "duplicate"
)

// ContextPayload is the editor state sent along with prepare and oneshot
// requests. Variable keys are short names ("Row") or environment keys
// ("TASKDECK_ROW"); anything else is a custom variable.
type ContextPayload struct {
	Cwd       string            `json:"cwd,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Request is one message from the executor.
type Request struct {
	Type string `json:"type"`
	// Seq is echoed back so clients can match responses.
	Seq     int64           `json:"seq,omitempty"`
	TaskID  task.TaskID     `json:"task_id,omitempty"`
	Prompt  string          `json:"prompt,omitempty"`
	RunID   string          `json:"run_id,omitempty"`
	Context *ContextPayload `json:"context,omitempty"`
	// DryRun prepares without recording a run.
	DryRun bool `json:"dry_run,omitempty"`
}

// TaskInfo describes a schedulable task.
type TaskInfo struct {
	ID     task.TaskID `json:"id"`
	Label  string      `json:"label"`
	Source string      `json:"source"`
	Kind   source.Kind `json:"kind"`
	Cwd    string      `json:"cwd,omitempty"`
}

// DiagnosticInfo is a source failure in wire form.
type DiagnosticInfo struct {
	Source string      `json:"source"`
	Kind   source.Kind `json:"kind"`
	Error  string      `json:"error"`
}

// Response answers a Request.
type Response struct {
	Type        string                `json:"type"`
	Seq         int64                 `json:"seq,omitempty"`
	Tasks       []TaskInfo            `json:"tasks,omitempty"`
	Diagnostics []DiagnosticInfo      `json:"diagnostics,omitempty"`
	Spawn       *task.SpawnInTerminal `json:"spawn,omitempty"`
	Run         *rerun.Run            `json:"run,omitempty"`
	Runs        []rerun.Run           `json:"runs,omitempty"`
	Error       string                `json:"error,omitempty"`
	Code        string                `json:"code,omitempty"`
}

func errorResponse(req Request, code string, err error) Response {
	return Response{Type: TypeError, Seq: req.Seq, Error: err.Error(), Code: code}
}

func tasksOf(snap source.Snapshot) []TaskInfo {
	out := make([]TaskInfo, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		out = append(out, TaskInfo{
			ID:     e.Task.ID(),
			Label:  e.Task.Name(),
			Source: e.Source,
			Kind:   e.Kind,
			Cwd:    e.Task.Cwd(),
		})
	}
	return out
}

func diagnosticsOf(snap source.Snapshot) []DiagnosticInfo {
	out := make([]DiagnosticInfo, 0, len(snap.Diagnostics))
	for _, d := range snap.Diagnostics {
		out = append(out, DiagnosticInfo{Source: d.Source, Kind: d.Kind, Error: d.Err.Error()})
	}
	return out
}
