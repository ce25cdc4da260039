// Package fallback produces automated responses through a language model
// gateway when no human responder is involved.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/errs"
)

type Role string

const (
	RoleRequester Role = "requester"
	RoleResponder Role = "responder"
)

// Turn is one message of a conversation.
type Turn struct {
	Role Role
	Text string
}

// Context is everything the generator knows about the request being answered.
type Context struct {
	CulturalTag string
	// History holds prior turns, oldest first. Only the last Window are sent.
	History []Turn
	Message string
}

// Gateway is a language model backend.
type Gateway interface {
	Complete(ctx context.Context, system string, turns []Turn) (string, error)
}

type Options struct {
	Window         int
	Timeout        time.Duration
	DefaultPersona string
}

func (o *Options) defaults() {
	if o.Window <= 0 {
		o.Window = 6
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
}

type Generator struct {
	gw       Gateway
	opts     Options
	personas *Personas
	log      *slog.Logger
}

func NewGenerator(gw Gateway, opts Options, log *slog.Logger) *Generator {
	opts.defaults()
	return &Generator{
		gw:       gw,
		opts:     opts,
		personas: NewPersonas(opts.DefaultPersona),
		log:      log.With("component", "fallback"),
	}
}

type result struct {
	text string
	err  error
}

// Generate makes exactly one gateway call bounded by the configured timeout.
// It returns ErrGatewayTimeout when the deadline passes and ErrGatewayError
// for any other failure, including an empty answer after markup stripping.
// When ctx itself is done its error is returned as is.
func (g *Generator) Generate(ctx context.Context, c Context) (string, error) {
	history := c.History
	if len(history) > g.opts.Window {
		history = history[len(history)-g.opts.Window:]
	}
	turns := make([]Turn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, Turn{Role: RoleRequester, Text: c.Message})
	system := g.personas.Preamble(c.CulturalTag)

	cctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		text, err := g.gw.Complete(cctx, system, turns)
		done <- result{text: text, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-cctx.Done():
		res = result{err: cctx.Err()}
	}

	if res.err != nil {
		// The caller went away; that is not a gateway fault.
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			g.log.WarnContext(ctx, "gateway timeout", "timeout", g.opts.Timeout, "cultural_tag", c.CulturalTag)
			return "", fmt.Errorf("%w: after %s", errs.ErrGatewayTimeout, g.opts.Timeout)
		}
		g.log.WarnContext(ctx, "gateway failed", "error", res.err)
		return "", fmt.Errorf("%w: %w", errs.ErrGatewayError, res.err)
	}

	text := StripMarkup(res.text)
	if text == "" {
		g.log.WarnContext(ctx, "gateway returned empty text")
		return "", fmt.Errorf("%w: empty response", errs.ErrGatewayError)
	}
	g.log.DebugContext(ctx, "fallback generated", "turns", len(turns), "duration", time.Since(start))
	return text, nil
}
