// Package bench drives throughput comparisons of proxy server commands: it
// starts each command in its own process group, waits until it answers,
// measures requests per second for a fixed duration and tears the whole
// process tree down again.
package bench

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/google/shlex"
)

// ErrEmptyCommand is returned when a server command has no program name.
var ErrEmptyCommand = errors.New("empty server command")

// Process is a server under test. The command runs as the leader of a new
// process group so that workers it forks are signalled with it.
type Process struct {
	command string
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// StartProcess launches command, split into words with shell quoting rules.
// No shell runs it, so pipes and variables are not expanded. Output of the
// child goes to stdout and stderr, which may be nil.
func StartProcess(command string, stdout, stderr io.Writer) (*Process, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %q: %w", args[0], err)
	}

	p := &Process{
		command: command,
		cmd:     cmd,
		done:    make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Pid returns the process id of the group leader.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Exited reports whether the group leader has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Stop sends SIGTERM to the process group and waits up to grace for the
// leader to exit, then sends SIGKILL. forced reports whether SIGKILL was needed.
func (p *Process) Stop(grace time.Duration) (forced bool, err error) {
	if p.Exited() {
		return false, nil
	}

	if err := terminateGroup(p.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return false, fmt.Errorf("terminate %q: %w", p.command, err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return false, nil
	case <-timer.C:
	}

	if err := killGroup(p.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return true, fmt.Errorf("kill %q: %w", p.command, err)
	}
	<-p.done
	return true, nil
}
