package entity

import "errors"

var (
	// Conversation errors
	ErrInvalidConversationID = errors.New("invalid conversation id")
	ErrConversationNotFound  = errors.New("conversation not found")

	// Message errors
	ErrInvalidMessageID = errors.New("invalid message id")
	ErrEmptyPrompt      = errors.New("empty prompt")
	ErrNilCouncilResult = errors.New("nil council result")
)
