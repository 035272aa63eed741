// Package hook runs user supplied shell commands around each mirror pass,
// e.g. to mount the replica before a pass or to send a notification after it.
package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// ErrNothingToExecute is returned for an empty plan. It marks a skipped stage, not a failure.
var ErrNothingToExecute = errors.New("nothing to execute")

// Stage identifies when a hook runs relative to a pass.
type Stage int

const (
	PrePass Stage = iota
	PostPass
)

var stageToString = map[Stage]string{PrePass: "pre-pass", PostPass: "post-pass"}
var stringToStage = map[string]Stage{}

func init() {
	stringToStage = util.InvertMap(stageToString)
}

// String returns the string representation of a Stage.
func (s Stage) String() string {
	if str, ok := stageToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_stage(%d)", s)
}

// ParseStage parses a string and returns the corresponding Stage.
func ParseStage(s string) (Stage, error) {
	if stage, ok := stringToStage[s]; ok {
		return stage, nil
	}
	return 0, fmt.Errorf("invalid hook stage: %q. Must be 'pre-pass' or 'post-pass'", s)
}

// Plan holds the commands of one stage and how to treat their failures.
type Plan struct {
	Commands []string
	DryRun   bool
	FailFast bool
}

// PassInfo is exported to hook commands as PGL_MIRROR_* environment variables.
type PassInfo struct {
	Pass    int
	Source  string
	Replica string
	// The counters are only meaningful for post-pass hooks.
	Copied  int64
	Updated int64
	Failed  int
}

func (pi PassInfo) environ() []string {
	return []string{
		"PGL_MIRROR_PASS=" + strconv.Itoa(pi.Pass),
		"PGL_MIRROR_SOURCE=" + pi.Source,
		"PGL_MIRROR_REPLICA=" + pi.Replica,
		"PGL_MIRROR_COPIED=" + strconv.FormatInt(pi.Copied, 10),
		"PGL_MIRROR_UPDATED=" + strconv.FormatInt(pi.Updated, 10),
		"PGL_MIRROR_FAILED=" + strconv.Itoa(pi.Failed),
	}
}

type HookExecutor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewHookExecutor creates a HookExecutor. Pass exec.CommandContext outside of tests.
func NewHookExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *HookExecutor {
	return &HookExecutor{
		commandContext: commandContext,
	}
}

// createCommand wraps command in the platform shell.
func (e *HookExecutor) createCommand(ctx context.Context, command string) *exec.Cmd {
	name, args := shellArgs(command)
	cmd := e.commandContext(ctx, name, args...)
	cmd.SysProcAttr = processGroupAttr()
	return cmd
}

// Run executes the plan's commands in order. A failing command is logged and
// the next one runs, unless FailFast is set. It returns ErrNothingToExecute
// when the plan has no commands.
func (e *HookExecutor) Run(ctx context.Context, stage Stage, p *Plan, info PassInfo) error {
	if len(p.Commands) == 0 {
		return ErrNothingToExecute
	}

	plog.Info("Running hook commands", "stage", stage, "pass", info.Pass)

	for _, hookCommand := range p.Commands {
		if err := ctx.Err(); err != nil {
			return err
		}

		if p.DryRun {
			plog.Info("[DRY RUN] Executing command", "stage", stage, "command", hookCommand)
			continue
		}
		plog.Info("Executing command", "stage", stage, "command", hookCommand)

		cmd := e.createCommand(ctx, hookCommand)
		env := cmd.Env
		if env == nil {
			env = os.Environ()
		}
		env = append(env, info.environ()...)
		cmd.Env = append(env, "PGL_MIRROR_STAGE="+stage.String())

		// Pipe output to our logger for visibility
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			// A cancelled context kills the command; report the cancellation, not the exit status.
			if errors.Is(ctx.Err(), context.Canceled) {
				return context.Canceled
			}
			if p.FailFast {
				return fmt.Errorf("%s command '%s' failed: %w", stage, hookCommand, err)
			}
			plog.Warn("Hook command failed", "stage", stage, "command", hookCommand, "error", err)
		}
	}
	return nil
}
