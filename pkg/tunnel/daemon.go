package tunnel

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/bmad-run/overseer/pkg/config"
)

// SystemdDaemon controls the tunnel daemon through a systemd unit (spec
// §4.8 step 7, §4.10's "systemd restart ... depending on deployment
// topology"), grounded on the os/exec subprocess pattern pkg/handoff uses
// for tmux.
type SystemdDaemon struct {
	unitName string
}

// NewSystemdDaemon creates a SystemdDaemon controlling unitName.
func NewSystemdDaemon(unitName string) *SystemdDaemon {
	return &SystemdDaemon{unitName: unitName}
}

// Restart implements restart.Daemon.
func (d *SystemdDaemon) Restart(ctx context.Context) error {
	return runSystemctl(ctx, "restart", d.unitName)
}

// Reload implements DaemonReloader.
func (d *SystemdDaemon) Reload(ctx context.Context) error {
	return runSystemctl(ctx, "reload-or-restart", d.unitName)
}

// Status implements DaemonReloader.
func (d *SystemdDaemon) Status(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "systemctl", "is-active", d.unitName)
	var out bytes.Buffer
	cmd.Stdout = &out
	err := cmd.Run()
	return bytes.Equal(bytes.TrimSpace(out.Bytes()), []byte("active")), err
}

func runSystemctl(ctx context.Context, action, unit string) error {
	cmd := exec.CommandContext(ctx, "systemctl", action, unit)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl %s %s: %w: %s", action, unit, err, out)
	}
	return nil
}

// ContainerDaemon controls the tunnel daemon through its own Docker
// container (spec §4.8 step 7, §4.10's "container restart").
type ContainerDaemon struct {
	containerName string
}

// NewContainerDaemon creates a ContainerDaemon controlling containerName.
func NewContainerDaemon(containerName string) *ContainerDaemon {
	return &ContainerDaemon{containerName: containerName}
}

// Restart implements restart.Daemon.
func (d *ContainerDaemon) Restart(ctx context.Context) error {
	return runDocker(ctx, "restart", d.containerName)
}

// Reload implements DaemonReloader, signalling the ingress-reload handler
// inside the container rather than a full restart.
func (d *ContainerDaemon) Reload(ctx context.Context) error {
	return runDocker(ctx, "kill", "--signal=HUP", d.containerName)
}

// Status implements DaemonReloader.
func (d *ContainerDaemon) Status(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, "docker", "inspect", "-f", "{{.State.Running}}", d.containerName)
	var out bytes.Buffer
	cmd.Stdout = &out
	err := cmd.Run()
	return bytes.Equal(bytes.TrimSpace(out.Bytes()), []byte("true")), err
}

func runDocker(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("docker %v: %w: %s", args, err, out)
	}
	return nil
}

// NewDaemonReloader builds the DaemonReloader selected by mode (spec §4.10).
func NewDaemonReloader(mode config.DaemonControlMode, name string) DaemonReloader {
	if mode == config.DaemonControlContainer {
		return NewContainerDaemon(name)
	}
	return NewSystemdDaemon(name)
}
