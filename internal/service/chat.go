package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/llm"
)

// TutorPrompt is sent as the first system message of every conversation.
const TutorPrompt = `You are a chatbot that serves as an online teaching assistant for an introductory computer science programming course.
Your role is to assist the students and explain programming concepts. You can guide them how to approach the solution to the questions they ask, but never give them code that directly solves the problem or question they ask.
You are allowed to come up with examples to help them understand what they need to do.

You are allowed to provide external links.

Refuse any question that is not about programming or this course.
Provide short, concise answers.`

// MaxChatMessages bounds the history a client may send.
const MaxChatMessages = 100

// ChatMessage is one entry of the client-held conversation.
// IsUserMessage is a pointer so a missing field can be told apart from false.
type ChatMessage struct {
	ID            string `json:"id"`
	IsUserMessage *bool  `json:"isUserMessage"`
	Text          string `json:"text"`
}

// ChatObserver is implemented by metrics.Collector.
type ChatObserver interface {
	ObserveChat(result string)
}

// ChatService relays a conversation to the model and streams the reply.
type ChatService struct {
	client   llm.Client
	observer ChatObserver
	logger   *slog.Logger
}

func NewChatService(client llm.Client, observer ChatObserver, logger *slog.Logger) *ChatService {
	return &ChatService{client: client, observer: observer, logger: logger}
}

// ValidateHistory checks every message has an id, a user/bot flag and text.
func ValidateHistory(history []ChatMessage) error {
	if len(history) == 0 {
		return apperror.ValidationFailed("messages", "at least one message is required")
	}
	if len(history) > MaxChatMessages {
		return apperror.ValidationFailed("messages",
			fmt.Sprintf("at most %d messages are allowed", MaxChatMessages))
	}
	for i, m := range history {
		field := fmt.Sprintf("messages[%d]", i)
		switch {
		case m.ID == "":
			return apperror.ValidationFailed(field+".id", "id is required")
		case m.IsUserMessage == nil:
			return apperror.ValidationFailed(field+".isUserMessage", "isUserMessage is required")
		case m.Text == "":
			return apperror.ValidationFailed(field+".text", "text is required")
		}
	}
	return nil
}

// Outbound converts the history to model messages behind the tutor prompt.
// Bot messages are the model's own earlier replies, so they go back as
// assistant turns.
func Outbound(history []ChatMessage) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.SystemMessage(TutorPrompt))
	for _, m := range history {
		if *m.IsUserMessage {
			msgs = append(msgs, llm.UserMessage(m.Text))
		} else {
			msgs = append(msgs, llm.AssistantMessage(m.Text))
		}
	}
	return msgs
}

// Stream validates history, asks the model and passes each text delta to
// emit. Deltas containing a newline are dropped until two chunks have been
// emitted, which trims the blank lines models like to open with.
//
// An error from emit stops the stream and is returned as is.
func (s *ChatService) Stream(ctx context.Context, history []ChatMessage, emit func(delta string) error) error {
	if err := ValidateHistory(history); err != nil {
		s.observe("invalid")
		return err
	}

	emitted := 0
	_, err := s.client.ChatCompletionStream(ctx, Outbound(history), func(delta string) error {
		if emitted < 2 && strings.Contains(delta, "\n") {
			return nil
		}
		emitted++
		return emit(delta)
	})
	if err != nil {
		s.observe("error")
		s.logger.ErrorContext(ctx, "chat stream failed",
			slog.Int("messages", len(history)),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.observe("ok")
	return nil
}

func (s *ChatService) observe(result string) {
	if s.observer != nil {
		s.observer.ObserveChat(result)
	}
}
