package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/efuayankey/aimes-sub001/internal/fallback"
)

// Mock answers without any network call. Used for local development.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Complete(ctx context.Context, _ string, turns []fallback.Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var last string
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == fallback.RoleRequester {
			last = strings.TrimSpace(turns[i].Text)
			break
		}
	}
	if utf8.RuneCountInString(last) > 80 {
		last = string([]rune(last)[:80]) + "..."
	}
	return fmt.Sprintf("Thank you for sharing this. I hear that %q is on your mind. "+
		"Could you tell me a little more about how it is affecting you?", last), nil
}
