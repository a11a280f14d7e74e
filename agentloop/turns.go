package agentloop

import (
	"github.com/agentd-dev/agentd/llm"
)

// ConversationState is the append-only message history of a run. Prior
// entries are never rewritten; steering and tool results only ever append.
type ConversationState struct {
	messages []llm.Message
}

// NewConversationState starts a history with an optional system prompt.
func NewConversationState(systemPrompt string) *ConversationState {
	s := &ConversationState{}
	if systemPrompt != "" {
		s.messages = append(s.messages, llm.SystemMessage(systemPrompt))
	}
	return s
}

// AppendUser appends a user message. Steering messages use the same role so
// the model treats them as additional instructions.
func (s *ConversationState) AppendUser(content string) {
	s.messages = append(s.messages, llm.UserMessage(content))
}

// AppendAssistant appends the model's response, tool calls included.
func (s *ConversationState) AppendAssistant(content string, toolCalls ...llm.ToolCall) {
	s.messages = append(s.messages, llm.AssistantMessage(content, toolCalls...))
}

// AppendToolResult appends a tool execution result for the given call.
func (s *ConversationState) AppendToolResult(toolCallID, content string, isError bool) {
	s.messages = append(s.messages, llm.ToolResultMessage(toolCallID, content, isError))
}

// Messages returns a copy of the history for building a model request.
func (s *ConversationState) Messages() []llm.Message {
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the history.
func (s *ConversationState) Len() int { return len(s.messages) }
