package entity

import "time"

// DefaultConversationTitle is the placeholder before auto-titling kicks in.
const DefaultConversationTitle = "New conversation"

// Title provenance. A chairman upgrade only replaces titles the user never
// touched, so the source travels with the conversation.
const (
	TitleSourceDefault  = "default"
	TitleSourceUser     = "user"
	TitleSourceDerived  = "derived"
	TitleSourceChairman = "chairman"
)

// Message roles within a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation groups council runs under one thread.
type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	TitleSource string    `json:"title_source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// Messages is populated on detail reads, empty in listings.
	Messages []StoredMessage `json:"messages,omitempty"`
}

// NewConversation creates a conversation with the placeholder title unless
// one is provided.
func NewConversation(id, title string) (*Conversation, error) {
	if id == "" {
		return nil, ErrInvalidConversationID
	}
	source := TitleSourceUser
	if title == "" {
		title = DefaultConversationTitle
		source = TitleSourceDefault
	}
	return &Conversation{
		ID:          id,
		Title:       title,
		TitleSource: source,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// StoredMessage is one persisted turn. Assistant turns carry the full
// council payload; user turns carry only content.
type StoredMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	// Payload holds the CouncilResult for assistant messages.
	Payload   *CouncilResult `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewUserMessage creates a user turn.
func NewUserMessage(id, conversationID, content string) (*StoredMessage, error) {
	if id == "" {
		return nil, ErrInvalidMessageID
	}
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}
	if content == "" {
		return nil, ErrEmptyPrompt
	}
	return &StoredMessage{
		ID:             id,
		ConversationID: conversationID,
		Role:           RoleUser,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// NewAssistantMessage creates an assistant turn holding a council result.
func NewAssistantMessage(id, conversationID string, result *CouncilResult) (*StoredMessage, error) {
	if id == "" {
		return nil, ErrInvalidMessageID
	}
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}
	if result == nil {
		return nil, ErrNilCouncilResult
	}
	return &StoredMessage{
		ID:             id,
		ConversationID: conversationID,
		Role:           RoleAssistant,
		Content:        result.Stage3.Response,
		Payload:        result,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
