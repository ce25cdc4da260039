package fallback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu     sync.Mutex
	calls  int
	system string
	turns  []Turn

	reply string
	err   error
	block <-chan struct{}
}

func (f *fakeGateway) Complete(ctx context.Context, system string, turns []Turn) (string, error) {
	f.mu.Lock()
	f.calls++
	f.system = system
	f.turns = turns
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.reply, f.err
}

func history(n int) []Turn {
	out := make([]Turn, n)
	for i := range out {
		role := RoleRequester
		if i%2 == 1 {
			role = RoleResponder
		}
		out[i] = Turn{Role: role, Text: strings.Repeat("x", i+1)}
	}
	return out
}

func TestGenerate_WindowAndPersona(t *testing.T) {
	gw := &fakeGateway{reply: "**You are not alone.** Try a short walk."}
	g := NewGenerator(gw, Options{Window: 6}, logger.Discard())

	text, err := g.Generate(context.Background(), Context{
		CulturalTag: "East-Asian",
		History:     history(10),
		Message:     "I failed my exam",
	})
	require.NoError(t, err)
	assert.Equal(t, "You are not alone. Try a short walk.", text)

	assert.Equal(t, 1, gw.calls)
	require.Len(t, gw.turns, 7)
	assert.Equal(t, strings.Repeat("x", 5), gw.turns[0].Text)
	assert.Equal(t, Turn{Role: RoleRequester, Text: "I failed my exam"}, gw.turns[6])
	assert.Contains(t, gw.system, "family expectations")
}

func TestGenerate_UnknownTagUsesDefaultPersona(t *testing.T) {
	gw := &fakeGateway{reply: "ok"}
	g := NewGenerator(gw, Options{DefaultPersona: "Keep answers short."}, logger.Discard())

	_, err := g.Generate(context.Background(), Context{CulturalTag: "unknown", Message: "hi"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gw.system, basePreamble))
	assert.True(t, strings.HasSuffix(gw.system, "Keep answers short."))
}

func TestGenerate_Timeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	gw := &fakeGateway{reply: "late", block: block}
	g := NewGenerator(gw, Options{Timeout: 20 * time.Millisecond}, logger.Discard())

	start := time.Now()
	_, err := g.Generate(context.Background(), Context{Message: "hi"})
	assert.ErrorIs(t, err, errs.ErrGatewayTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGenerate_CallerCancelledIsNotAGatewayFault(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	gw := &fakeGateway{reply: "late", block: block}
	g := NewGenerator(gw, Options{Timeout: time.Minute}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := g.Generate(ctx, Context{Message: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, errs.ErrGatewayError)
	assert.NotErrorIs(t, err, errs.ErrGatewayTimeout)
	assert.False(t, errs.IsGateway(err))
}

func TestGenerate_GatewayError(t *testing.T) {
	gw := &fakeGateway{err: errors.New("quota exceeded")}
	g := NewGenerator(gw, Options{}, logger.Discard())

	_, err := g.Generate(context.Background(), Context{Message: "hi"})
	assert.ErrorIs(t, err, errs.ErrGatewayError)
	assert.Equal(t, 1, gw.calls)
}

func TestGenerate_EmptyAfterStripping(t *testing.T) {
	gw := &fakeGateway{reply: "<div>  </div>\n```\n```"}
	g := NewGenerator(gw, Options{}, logger.Discard())

	_, err := g.Generate(context.Background(), Context{Message: "hi"})
	assert.ErrorIs(t, err, errs.ErrGatewayError)
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"**Hello** there", "Hello there"},
		{"# Title\nText", "Title\nText"},
		{"<p>Hi <b>you</b></p>", "Hi you"},
		{"* one\n* two", "- one\n- two"},
		{"See [the help line](https://example.org)", "See the help line"},
		{"Use `breathing` exercises", "Use breathing exercises"},
		{"```\nbreathe\n```", "breathe"},
		{"Take _one_ step", "Take one step"},
		{"it's ok & fine", "it's ok & fine"},
		{"> quoted\n\n\n\nnext", "quoted\n\nnext"},
		{"snake_case_name stays", "snake_case_name stays"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripMarkup(tt.in), "input %q", tt.in)
	}
}
