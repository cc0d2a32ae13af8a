// Package launcher implements the process launcher external interface
// of spec.md §6: launch/pause/resume/kill for supervised workloads,
// grounded on the teacher's manager/process.go process-supervision
// idiom (Setpgid, credential drop, signal-based control) without its
// restart-on-exit behavior, which spec.md's Non-goals exclude.
package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/vtselfa/manager-sub000/internal/task"
)

// ErrTaskGone is returned by Pause/Resume/SetAffinity when the target
// process no longer exists, the spec.md §7 TaskGone condition: the
// workload exited on its own between the control loop's sampling and
// its attempt to change the process's signal/affinity state.
var ErrTaskGone = errors.New("launcher: task process no longer exists")

func wrapESRCH(err error) error {
	if errors.Is(err, syscall.ESRCH) {
		return ErrTaskGone
	}
	return err
}

// Launcher runs and controls supervised workload processes.
type Launcher struct {
	// UID/GID, when non-zero, are dropped into before exec, mirroring
	// manager/process.go's privilege-drop support.
	UID, GID int
}

// Launch starts a task's command in its own process group, inside its
// scratch directory, with stdio redirected to the configured files,
// and CPU affinity already pinned to its allowed set. It returns the
// new process's pid once the process has been started (not once it
// exits), matching spec.md §6's launch(task) -> pid contract.
func (l Launcher) Launch(t *task.Task) (int, error) {
	args := strings.Fields(t.Cmd)
	if len(args) == 0 {
		return 0, fmt.Errorf("launcher: empty command for task %d", t.ID)
	}

	attr := &syscall.SysProcAttr{Setpgid: true}
	if l.UID > 0 || l.GID > 0 {
		attr.Credential = &syscall.Credential{Uid: uint32(l.UID), Gid: uint32(l.GID)}
	}

	cmd := &exec.Cmd{
		Path:        args[0],
		Args:        args,
		Dir:         t.RunDir,
		SysProcAttr: attr,
	}

	if err := redirectStdio(cmd, t); err != nil {
		return 0, err
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("launcher: failed to start task %d (%s): %w", t.ID, t.Executable, err)
	}

	if len(t.AllowedCPUs) > 0 {
		if err := SetAffinity(cmd.Process.Pid, t.AllowedCPUs); err != nil {
			_ = cmd.Process.Kill()
			return 0, err
		}
	}

	return cmd.Process.Pid, nil
}

func redirectStdio(cmd *exec.Cmd, t *task.Task) error {
	if t.Stdin != "" {
		f, err := os.Open(t.Stdin)
		if err != nil {
			return fmt.Errorf("launcher: stdin for task %d: %w", t.ID, err)
		}
		cmd.Stdin = f
	}
	if t.Stdout != "" {
		f, err := os.Create(t.Stdout)
		if err != nil {
			return fmt.Errorf("launcher: stdout for task %d: %w", t.ID, err)
		}
		cmd.Stdout = f
	}
	if t.Stderr != "" {
		f, err := os.Create(t.Stderr)
		if err != nil {
			return fmt.Errorf("launcher: stderr for task %d: %w", t.ID, err)
		}
		cmd.Stderr = f
	}
	return nil
}

// SetAffinity pins a process to the given set of logical CPUs.
func SetAffinity(pid int, cpus []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, c := range cpus {
		set.Set(c)
	}
	return wrapESRCH(unix.SchedSetaffinity(pid, &set))
}

// SetAffinity is the TaskLauncher-interface form of the package-level
// function, letting control.Loop depend on an interface instead of a
// concrete Launcher.
func (l Launcher) SetAffinity(pid int, cpus []int) error {
	return SetAffinity(pid, cpus)
}

// Pause stops a process with SIGSTOP and waits for the stop to be
// reported. Returns ErrTaskGone, not an ordinary error, if the process
// has already exited -- spec.md §8 scenario 6: SIGSTOP on a gone pid
// must not escape as a fatal error. A pid that is not a child of this
// process is signaled without waiting.
func (l Launcher) Pause(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGSTOP); err != nil {
		return wrapESRCH(err)
	}
	var ws syscall.WaitStatus
	if _, err := syscall.Wait4(pid, &ws, syscall.WUNTRACED, nil); err != nil {
		if errors.Is(err, syscall.ECHILD) {
			return nil
		}
		return wrapESRCH(err)
	}
	if ws.Exited() || ws.Signaled() {
		return ErrTaskGone
	}
	return nil
}

// Resume resumes a stopped process with SIGCONT. See Pause for the
// ErrTaskGone contract.
func (l Launcher) Resume(pid int) error {
	return wrapESRCH(syscall.Kill(pid, syscall.SIGCONT))
}

// Kill sends SIGKILL and reaps the process. A process that is already
// gone is not an error: Teardown must be able to kill every task
// unconditionally without tripping over one that exited on its own.
func (l Launcher) Kill(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(pid, &ws, 0, nil)
	if errors.Is(err, syscall.ECHILD) || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
