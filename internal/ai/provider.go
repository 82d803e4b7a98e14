package ai

import "context"

// Provider is a remote generative-language service.
type Provider interface {
	// NewChat opens a persistent multi-turn conversation seeded with cfg.
	NewChat(ctx context.Context, cfg ChatConfig) (Chat, error)
	// Generate is a one-shot text completion without tools.
	Generate(ctx context.Context, prompt string) (string, error)
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Message struct {
	Role Role
	Text string
}

type ChatConfig struct {
	SystemInstruction string
	Tools             []ToolSpec
	History           []Message
}

// Chat keeps its own history. Each call appends the request and the reply.
type Chat interface {
	SendText(ctx context.Context, text string) (*Reply, error)
	// SendToolResponses answers every tool call of the previous reply in one
	// batch.
	SendToolResponses(ctx context.Context, responses []ToolResponse) (*Reply, error)
}

// Reply may carry text, tool calls, or both.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeBoolean SchemaType = "boolean"
)

type Schema struct {
	Type        SchemaType
	Description string
	Enum        []string
	Properties  map[string]*Schema
	Required    []string
}

// ToolSpec declares a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *Schema
}
