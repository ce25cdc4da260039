package llm

import (
	"context"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/efuayankey/aimes-sub001/internal/config"
	"github.com/efuayankey/aimes-sub001/internal/fallback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaudeMessages_AlternatesRoles(t *testing.T) {
	msgs := claudeMessages([]fallback.Turn{
		{Role: fallback.RoleResponder, Text: "welcome"},
		{Role: fallback.RoleRequester, Text: "hi"},
		{Role: fallback.RoleRequester, Text: "are you there?"},
		{Role: fallback.RoleResponder, Text: "yes"},
		{Role: fallback.RoleRequester, Text: "I feel tired"},
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	require.NotNil(t, msgs[0].Content[0].OfText)
	assert.Equal(t, "hi\n\nare you there?", msgs[0].Content[0].OfText.Text)
}

func TestMock_EchoesLastRequesterTurn(t *testing.T) {
	out, err := NewMock().Complete(context.Background(), "", []fallback.Turn{
		{Role: fallback.RoleRequester, Text: "exams"},
		{Role: fallback.RoleResponder, Text: "tell me more"},
		{Role: fallback.RoleRequester, Text: "I cannot sleep"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, `"I cannot sleep"`)
}

func TestMock_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMock().Complete(ctx, "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_SelectsProvider(t *testing.T) {
	gw, err := New(context.Background(), config.LLMConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &Mock{}, gw)

	gw, err = New(context.Background(), config.LLMConfig{Provider: "claude", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Claude{}, gw)

	_, err = New(context.Background(), config.LLMConfig{Provider: "other"})
	assert.Error(t, err)
}
