package entity

// TaskClass selects the submission deadline. Video generation is observed to
// take materially longer upstream than image generation.
type TaskClass string

const (
	TaskClassImage TaskClass = "image"
	TaskClassVideo TaskClass = "video"
)

// Task is one generation request bound to a single lease. It is ephemeral and
// never persisted; TaskID only correlates staged files and log lines.
type Task struct {
	TaskID      string
	Prompt      string
	Attachments []string // staged file paths, uploaded in order
	AspectRatio string   // "Auto" means leave the site default alone
	Class       TaskClass
}

// FailureKind classifies why a task or worker operation failed.
type FailureKind string

const (
	FailureInit        FailureKind = "initialization_failure"
	FailureNoCapacity  FailureKind = "no_capacity"
	FailureInteraction FailureKind = "interaction_failure"
	FailureTimeout     FailureKind = "timeout"
	FailureUpstream    FailureKind = "upstream_error"
	FailureTeardown    FailureKind = "teardown_failure"
	FailureIncomplete  FailureKind = "incomplete_stream"
	FailureInternal    FailureKind = "internal_error"
)

// Media is one decoded binary attachment recovered from a response stream.
type Media struct {
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

// TaskResult is produced exactly once per dispatch.
type TaskResult struct {
	TaskID  string      `json:"task_id"`
	Success bool        `json:"success"`
	Text    string      `json:"text,omitempty"`
	Media   []Media     `json:"media,omitempty"`
	Failure FailureKind `json:"failure,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// Fail builds a failed result carrying a human-readable reason.
func Fail(kind FailureKind, reason string) TaskResult {
	return TaskResult{Success: false, Failure: kind, Reason: reason}
}
