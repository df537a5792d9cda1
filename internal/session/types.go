package session

// Role identifies the speaker of a conversation turn.
type Role string

// Role constants for conversation turns.
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one recorded utterance in a session's ordered history.
// Turns are append-only; a turn is never mutated after it is recorded.
type Turn struct {
	Role        Role
	Content     string
	ToolName    string
	ToolInput   map[string]any
	ToolOutput  string
	FinalAnswer string
}
