package bus

import "github.com/tandemcode/tandem/pkg/types"

// SessionUpdatedData is the payload for session.updated.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// SessionRemovedData is the payload for session.removed.
type SessionRemovedData struct {
	SessionID string `json:"sessionID"`
}

// SessionIdleData is the payload for session.idle.
type SessionIdleData struct {
	SessionID string `json:"sessionID"`
}

// MessageCreatedData is the payload for message.created.
type MessageCreatedData struct {
	Info *types.Message `json:"info"`
}

// MessageCompletedData is the payload for message.completed.
type MessageCompletedData struct {
	Info *types.Message `json:"info"`
}

// MessagePartUpdatedData is the payload for message.part.updated. Delta
// carries only the new text for streaming subscribers; Version increases
// monotonically per message so a slow subscriber can detect missed
// updates and re-fetch.
type MessagePartUpdatedData struct {
	SessionID string     `json:"sessionID"`
	MessageID string     `json:"messageID"`
	Part      types.Part `json:"part"`
	Delta     string     `json:"delta,omitempty"`
	Version   int64      `json:"version"`
}

// PermissionRequestedData is the payload for permission.requested.
type PermissionRequestedData struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	Tool      string   `json:"tool"`
	Action    string   `json:"action"`
	Patterns  []string `json:"patterns,omitempty"`
	Title     string   `json:"title"`
}

// PermissionRepliedData is the payload for permission.granted and
// permission.denied.
type PermissionRepliedData struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Reply     string `json:"reply"` // "once" | "always" | "reject"
}

// StorageUpdatedData is the payload for storage.updated.
type StorageUpdatedData struct {
	Key     string `json:"key"`
	Op      string `json:"op"` // "write" | "remove"
	Version int64  `json:"version"`
}

// FileEditedData is the payload for file.edited.
type FileEditedData struct {
	File string `json:"file"`
}

// TodoUpdatedData is the payload for todo.updated.
type TodoUpdatedData struct {
	SessionID string           `json:"sessionID"`
	Todos     []types.TodoInfo `json:"todos"`
}

// ErrorData is the payload for error events.
type ErrorData struct {
	SessionID string `json:"sessionID,omitempty"`
	Message   string `json:"message"`
}
