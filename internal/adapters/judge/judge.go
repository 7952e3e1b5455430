// Package judge runs judge CLIs as subprocesses and turns their output into outcomes.
package judge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/okian/sieve/internal/config"
	"github.com/okian/sieve/internal/domain/extract"
	"github.com/okian/sieve/internal/domain/model"
	"github.com/okian/sieve/pkg/logger"
	"github.com/okian/sieve/pkg/metrics"
	"golang.org/x/time/rate"
)

const defaultWaitDelay = 2 * time.Second

// Call is one request to a judge.
type Call struct {
	Provider string
	Model    string
	Prompt   string
	Timeout  time.Duration
}

// Invoker runs one judge call. Implementations never return an error: every
// failure is folded into an uncertain Outcome whose Failure says why.
type Invoker interface {
	Invoke(ctx context.Context, call Call) model.Outcome
}

// Exec invokes judges as local processes.
type Exec struct {
	providers map[string]config.Provider
	log       logger.Logger
	limiter   *rate.Limiter
	waitDelay time.Duration
}

// NewExec creates an invoker over the configured providers.
func NewExec(providers map[string]config.Provider, opts ...Option) *Exec {
	e := &Exec{
		providers: providers,
		log:       logger.Get().Named("judge"),
		waitDelay: defaultWaitDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invoke runs the provider's command with the prompt and model substituted.
//
// Outcome precedence: parent canceled, deadline exceeded, quota marker,
// non-zero exit or spawn error, empty stdout, unparseable stdout, judgment.
func (e *Exec) Invoke(ctx context.Context, call Call) model.Outcome {
	started := time.Now()
	out := e.invoke(ctx, call)
	kind := string(out.Failure)
	if kind == "" {
		kind = "ok"
	}
	metrics.RecordProviderCall(call.Provider, kind, time.Since(started).Seconds())
	return out
}

func (e *Exec) invoke(ctx context.Context, call Call) model.Outcome {
	p, ok := e.providers[call.Provider]
	label := model.Label(call.Provider, call.Model)
	if !ok {
		return model.CrashOutcome(label, "unknown provider", call.Model)
	}
	modelUsed := call.Model
	if !p.UsesModel() || modelUsed == "" {
		modelUsed = call.Provider
		label = call.Provider
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return model.CanceledOutcome(label, modelUsed)
		}
	}

	argv := Render(p.Command, call.Prompt, call.Model)
	callCtx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, argv[0], argv[1:]...)
	configureProcess(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = e.waitDelay
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(p.Env)...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log.Debug(ctx, "judge started", logger.String("provider", call.Provider), logger.String("model", modelUsed))
	runErr := cmd.Run()

	switch {
	case ctx.Err() != nil:
		return model.CanceledOutcome(label, modelUsed)
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		e.log.Warn(ctx, "judge timed out", logger.String("provider", call.Provider), logger.Duration("timeout", call.Timeout))
		return model.TimeoutOutcome(label, call.Timeout, modelUsed)
	}

	if marker, found := quotaMarker(p.QuotaMarkers, stdout.String(), stderr.String()); found {
		e.log.Warn(ctx, "judge quota exhausted", logger.String("provider", call.Provider), logger.String("model", modelUsed))
		return model.ExhaustedOutcome(label, fmt.Sprintf("matched %q", marker), modelUsed)
	}
	if runErr != nil {
		detail := stderr.String()
		if strings.TrimSpace(detail) == "" {
			detail = runErr.Error()
		}
		e.log.Warn(ctx, "judge failed", logger.String("provider", call.Provider), logger.Error(runErr))
		return model.CrashOutcome(label, detail, modelUsed)
	}
	if strings.TrimSpace(stdout.String()) == "" {
		return model.EmptyOutcome(label, stderr.String(), modelUsed)
	}

	j, err := extract.ParseJudgment(stdout.String())
	if err != nil {
		e.log.Debug(ctx, "judge output not parseable", logger.String("provider", call.Provider), logger.Error(err))
		return model.ParseOutcome(stdout.String(), modelUsed)
	}
	return model.Outcome{
		Decision:    j.Decision,
		Confidence:  j.Confidence,
		ExcludeCode: j.ExcludeCode,
		Rationale:   j.Rationale,
		ModelUsed:   modelUsed,
	}
}

// Render substitutes {prompt} and {model} inside each command token.
func Render(command []string, prompt, modelName string) []string {
	argv := make([]string, len(command))
	for i, tok := range command {
		tok = strings.ReplaceAll(tok, config.ModelToken, modelName)
		argv[i] = strings.ReplaceAll(tok, config.PromptToken, prompt)
	}
	return argv
}

func quotaMarker(markers []string, outputs ...string) (string, bool) {
	for _, m := range markers {
		needle := strings.ToLower(strings.TrimSpace(m))
		if needle == "" {
			continue
		}
		for _, o := range outputs {
			if strings.Contains(strings.ToLower(o), needle) {
				return m, true
			}
		}
	}
	return "", false
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
