package core

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/command"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/present"
)

// EvalTimeout bounds one evaluation
const EvalTimeout = 30 * time.Second

// EvalPackage exposes the invocation to evaluated code, e.g.
// chatter.Message.Content.
const EvalPackage = "chatter"

// evalPrelude is imported before the code runs
var evalPrelude = []string{"fmt", "strings", "time", EvalPackage}

// CleanupCode strips a surrounding code fence and its language tag
func CleanupCode(content string) string {
	if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") && len(content) >= 6 {
		lines := strings.Split(content, "\n")
		if len(lines) >= 2 {
			return strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	return strings.Trim(content, "` \n")
}

// Evaluate interprets code with the standard library and env exported under
// EvalPackage. It returns what the code printed and its final value.
func Evaluate(ctx context.Context, code string, env map[string]any) (stdout string, result any, err error) {
	var out bytes.Buffer
	i := interp.New(interp.Options{Stdout: &out, Stderr: &out})
	if err := i.Use(stdlib.Symbols); err != nil {
		return "", nil, fmt.Errorf("load stdlib: %w", err)
	}

	symbols := make(map[string]reflect.Value, len(env))
	for name, v := range env {
		if v != nil {
			symbols[name] = reflect.ValueOf(v)
		}
	}
	if err := i.Use(interp.Exports{EvalPackage + "/" + EvalPackage: symbols}); err != nil {
		return "", nil, fmt.Errorf("export environment: %w", err)
	}

	for _, pkg := range evalPrelude {
		if _, err := i.Eval(`import "` + pkg + `"`); err != nil {
			return "", nil, fmt.Errorf("import %s: %w", pkg, err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			stdout, result, err = out.String(), nil, fmt.Errorf("panic: %v", r)
		}
	}()

	v, err := i.EvalWithContext(ctx, code)
	if err != nil {
		return out.String(), nil, err
	}
	if v.IsValid() && v.CanInterface() {
		result = v.Interface()
	}
	return out.String(), result, nil
}

func (cog *Cog) eval(ctx context.Context, c *command.Context) error {
	code := CleanupCode(c.Arg("code"))

	cog.evalMu.Lock()
	last := cog.lastEval
	cog.evalMu.Unlock()

	env := map[string]any{
		"Bot":     cog.host,
		"Ctx":     c,
		"Message": c.Message,
		"Channel": c.Channel,
		"Guild":   c.Guild,
		"Author":  c.Message.Author,
		"Last":    last,
	}

	evalCtx, cancel := context.WithTimeout(ctx, EvalTimeout)
	defer cancel()
	stdout, result, err := Evaluate(evalCtx, code, env)
	cog.host.Audit().LogEval(ctx, c.Message.Author.ID, len(code), err)

	rendered := ""
	if err == nil {
		if result != nil {
			cog.evalMu.Lock()
			cog.lastEval = result
			cog.evalMu.Unlock()
			rendered = fmt.Sprint(result)
		}
		if reactErr := c.React(ctx, "📨"); reactErr != nil {
			cog.log.Debug("could not react to eval", "error", reactErr)
		}
	}

	_, sendErr := c.Send(ctx, present.EvalOutput(stdout, rendered, err))
	return sendErr
}
