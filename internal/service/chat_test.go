package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/llm"
)

func boolPtr(b bool) *bool { return &b }

func history() []ChatMessage {
	return []ChatMessage{
		{ID: "1", IsUserMessage: boolPtr(true), Text: "What is recursion?"},
		{ID: "2", IsUserMessage: boolPtr(false), Text: "A function calling itself."},
		{ID: "3", IsUserMessage: boolPtr(true), Text: "Example?"},
	}
}

func TestValidateHistory(t *testing.T) {
	tests := []struct {
		name  string
		msgs  []ChatMessage
		field string
	}{
		{"empty", nil, "messages"},
		{"missing id", []ChatMessage{{IsUserMessage: boolPtr(true), Text: "hi"}}, "messages[0].id"},
		{"missing flag", []ChatMessage{{ID: "1", Text: "hi"}}, "messages[0].isUserMessage"},
		{"missing text", []ChatMessage{{ID: "1", IsUserMessage: boolPtr(true)}, {ID: "2", IsUserMessage: boolPtr(true)}}, "messages[0].text"},
		{"too many", make([]ChatMessage, MaxChatMessages+1), "messages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHistory(tt.msgs)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr), "err = %v", err)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}

	assert.NoError(t, ValidateHistory(history()))
}

func TestOutbound(t *testing.T) {
	msgs := Outbound(history())

	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, TutorPrompt, msgs[0].Content)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "A function calling itself.", msgs[2].Content)
	assert.Equal(t, llm.RoleUser, msgs[3].Role)
}

func TestStream_DropsLeadingNewlines(t *testing.T) {
	client := &fakeLLM{deltas: []string{"\n", "\n\n", "Think", "\n", " about", "\n", "it."}}
	obs := &recordingChatObserver{}
	svc := NewChatService(client, obs, discardLogger())

	var got []string
	err := svc.Stream(context.Background(), history(), func(d string) error {
		got = append(got, d)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Think", " about", "\n", "it."}, got)
	assert.Len(t, client.got, 4)
	assert.Equal(t, []string{"ok"}, obs.results)
}

func TestStream_InvalidHistoryNeverCallsModel(t *testing.T) {
	client := &fakeLLM{}
	obs := &recordingChatObserver{}
	svc := NewChatService(client, obs, discardLogger())

	err := svc.Stream(context.Background(), nil, func(string) error { return nil })
	assert.True(t, errors.Is(err, apperror.ErrValidation))
	assert.Nil(t, client.got)
	assert.Equal(t, []string{"invalid"}, obs.results)
}

func TestStream_Errors(t *testing.T) {
	obs := &recordingChatObserver{}
	svc := NewChatService(&fakeLLM{err: errors.New("upstream 500")}, obs, discardLogger())

	err := svc.Stream(context.Background(), history(), func(string) error { return nil })
	assert.ErrorContains(t, err, "upstream 500")
	assert.Equal(t, []string{"error"}, obs.results)

	// A failing writer stops the stream.
	stop := errors.New("client went away")
	svc = NewChatService(&fakeLLM{deltas: []string{"a", "b", "c"}}, nil, discardLogger())
	n := 0
	err = svc.Stream(context.Background(), history(), func(string) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}
