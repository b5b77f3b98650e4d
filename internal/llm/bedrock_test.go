package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.out, f.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(12),
			OutputTokens: aws.Int32(8),
			TotalTokens:  aws.Int32(20),
		},
	}
}

func TestBedrockClient_Complete(t *testing.T) {
	api := &fakeConverse{out: textOutput("  ご予算を教えてください。 ")}
	client := NewBedrockClient(api)

	resp, err := client.Complete(context.Background(), Request{
		Model:     "anthropic.claude-3-haiku",
		System:    []string{"be brief", " "},
		Messages:  []Message{{Role: RoleSystem, Content: "extra"}, {Role: RoleUser, Content: "SEO対策をしたい"}},
		MaxTokens: 64,
	})
	require.NoError(t, err)

	assert.Equal(t, "ご予算を教えてください。", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, TokenUsage{InputTokens: 12, OutputTokens: 8, TotalTokens: 20}, resp.Usage)

	require.NotNil(t, api.input)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(api.input.ModelId))
	assert.Len(t, api.input.System, 2)
	require.Len(t, api.input.Messages, 1)
	assert.Equal(t, brtypes.ConversationRoleUser, api.input.Messages[0].Role)
	assert.Equal(t, int32(64), aws.ToInt32(api.input.InferenceConfig.MaxTokens))
}

func TestBedrockClient_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewBedrockClient(&fakeConverse{}).Complete(ctx, Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.ErrorContains(t, err, "model id is required")

	_, err = NewBedrockClient(&fakeConverse{}).Complete(ctx, Request{Model: "m"})
	assert.ErrorContains(t, err, "at least one")

	_, err = NewBedrockClient(&fakeConverse{}).Complete(ctx, Request{Model: "m", Messages: []Message{{Role: "tool", Content: "x"}}})
	assert.ErrorContains(t, err, "unsupported role")

	boom := errors.New("throttled")
	_, err = NewBedrockClient(&fakeConverse{err: boom}).Complete(ctx, Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.ErrorIs(t, err, boom)

	_, err = NewBedrockClient(&fakeConverse{out: textOutput("   ")}).Complete(ctx, Request{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.ErrorContains(t, err, "no text content")
}

func TestNewBedrockClient_PanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { NewBedrockClient(nil) })
}
