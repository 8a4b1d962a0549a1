// Package contracts holds the JSON messages exchanged over the push channel.
package contracts

const (
	// MessageTypeReload tells a viewer to discard local state and refetch the page.
	MessageTypeReload = "reload"
	// MessageTypeContentUpdated acknowledges a save_content request.
	MessageTypeContentUpdated = "content_updated"
	// MessageTypeCodeExecutionResult answers an execute_code request.
	MessageTypeCodeExecutionResult = "code_execution_result"

	// MessageTypeSaveContent carries edited content HTML from a viewer.
	MessageTypeSaveContent = "save_content"
	// MessageTypeExecuteCode asks the server to run a code snippet.
	MessageTypeExecuteCode = "execute_code"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// IncomingMessage is the minimal envelope used to route viewer messages.
type IncomingMessage struct {
	Type string `json:"type"`
}

// SaveContentMessage carries the edited content fragment.
type SaveContentMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ExecuteCodeMessage requests execution of a code snippet.
type ExecuteCodeMessage struct {
	Type      string  `json:"type"`
	Code      string  `json:"code"`
	Language  string  `json:"language"`
	Timestamp float64 `json:"timestamp"`
}

// ReloadMessage is broadcast when the rendered artifact changed.
type ReloadMessage struct {
	Type string `json:"type"`
}

// ContentUpdatedMessage acknowledges a save to the requesting viewer only.
type ContentUpdatedMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// CodeExecutionResultMessage reports an execution outcome to the requesting viewer only.
type CodeExecutionResultMessage struct {
	Type      string  `json:"type"`
	Success   bool    `json:"success"`
	Output    string  `json:"output"`
	Stderr    string  `json:"stderr,omitempty"`
	Error     string  `json:"error,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// Reload returns a reload notification.
func Reload() ReloadMessage {
	return ReloadMessage{Type: MessageTypeReload}
}

// ContentSaved returns a successful save acknowledgement.
func ContentSaved() ContentUpdatedMessage {
	return ContentUpdatedMessage{Type: MessageTypeContentUpdated, Status: StatusSuccess}
}

// ContentSaveFailed returns a failed save acknowledgement carrying message.
func ContentSaveFailed(message string) ContentUpdatedMessage {
	return ContentUpdatedMessage{Type: MessageTypeContentUpdated, Status: StatusError, Message: message}
}
