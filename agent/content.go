package agent

// BlockKind classifies a content block.
type BlockKind int

const (
	// BlockText is plain text.
	BlockText BlockKind = iota
	// BlockToolCall is a tool invocation requested by the model.
	BlockToolCall
	// BlockToolResult is the serialized result of a tool call.
	BlockToolResult
	// BlockAttachment references a file such as a screenshot or result
	// bundle. Attachments are not replayed to adapters.
	BlockAttachment
)

func (k BlockKind) String() string {
	switch k {
	case BlockText:
		return "text"
	case BlockToolCall:
		return "tool_call"
	case BlockToolResult:
		return "tool_result"
	case BlockAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// Block is one piece of turn content.
type Block struct {
	Kind       BlockKind
	Text       string
	ToolCallID string
	ToolName   string
	Path       string
}

// Text returns a text block.
func Text(s string) Block {
	return Block{Kind: BlockText, Text: s}
}

// ToolCallBlock records a tool call made by the model. input is the raw
// JSON input.
func ToolCallBlock(id, name, input string) Block {
	return Block{Kind: BlockToolCall, ToolCallID: id, ToolName: name, Text: input}
}

// ToolResult returns a tool result block.
func ToolResult(id, name, text string) Block {
	return Block{Kind: BlockToolResult, ToolCallID: id, ToolName: name, Text: text}
}

// Attachment returns a block referencing a file.
func Attachment(path string) Block {
	return Block{Kind: BlockAttachment, Path: path}
}

// textual reports whether b is flattened into message text on side.
func (b Block) textual(assistant bool) bool {
	if assistant {
		return b.Kind == BlockText
	}
	return b.Kind == BlockText || b.Kind == BlockToolResult
}

// Turn is one (user content, assistant content) pair. It is immutable once
// built: the constructor and accessors copy.
type Turn struct {
	user      []Block
	assistant []Block
}

// NewTurn builds a Turn from copies of user and assistant.
func NewTurn(user, assistant []Block) Turn {
	return Turn{
		user:      append([]Block(nil), user...),
		assistant: append([]Block(nil), assistant...),
	}
}

// User returns a copy of the user-side blocks.
func (t Turn) User() []Block {
	return append([]Block(nil), t.user...)
}

// Assistant returns a copy of the assistant-side blocks.
func (t Turn) Assistant() []Block {
	return append([]Block(nil), t.assistant...)
}

// History is the append-only turn sequence of one session.
type History struct {
	turns []Turn
}

// Append adds a turn. Existing turns are never modified.
func (h *History) Append(t Turn) {
	h.turns = append(h.turns, t)
}

// Len returns the number of turns.
func (h *History) Len() int {
	return len(h.turns)
}

// Turns returns a copy of the recorded turns.
func (h *History) Turns() []Turn {
	return append([]Turn(nil), h.turns...)
}
