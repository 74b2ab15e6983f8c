// Package topology implements Docker Topology Intel (C10): a polled
// container/network inventory cache plus the Tunnel Manager's target-
// selection algorithm (spec §4.9), grounded on the docker/docker/client
// polling pattern (other_examples teradata-labs/loom pkg/docker/scheduler.go).
package topology

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// ContainerInfo is a cached snapshot of one container's networking facts.
type ContainerInfo struct {
	ID       string
	Name     string
	Image    string
	Status   string
	Networks []string
	Ports    []int
	SeenAt   time.Time
}

// dockerAPI is the subset of *client.Client the poller needs, so tests can
// supply a fake without a real daemon.
type dockerAPI interface {
	ContainerList(ctx context.Context, opts container.ListOptions) ([]container.Summary, error)
}

// Inventory polls the container runtime on an interval and answers
// target-selection queries from the cache (spec §4.9).
type Inventory struct {
	docker              dockerAPI
	daemonContainerName string
	staleAfter          time.Duration
	probePort           func(port int) bool

	mu    sync.RWMutex
	cache map[string]ContainerInfo
}

// New creates an Inventory. daemonContainerName identifies the tunnel
// daemon's own container, used to determine which networks it is attached
// to (spec §4.9 step 2).
func New(cli *client.Client, daemonContainerName string, staleAfter time.Duration) *Inventory {
	return &Inventory{
		docker:              cli,
		daemonContainerName: daemonContainerName,
		staleAfter:          staleAfter,
		probePort:           probeLocalPort,
		cache:               make(map[string]ContainerInfo),
	}
}

// Poll refreshes the cache from the container runtime and prunes entries
// not seen within staleAfter (spec §4.9 "Stale cache entries ... are
// pruned").
func (inv *Inventory) Poll(ctx context.Context) error {
	summaries, err := inv.docker.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return fmt.Errorf("topology: failed to list containers: %w", err)
	}

	now := time.Now()
	fresh := make(map[string]ContainerInfo, len(summaries))
	for _, s := range summaries {
		info := ContainerInfo{
			ID:     s.ID,
			Image:  s.Image,
			Status: s.Status,
			SeenAt: now,
		}
		if len(s.Names) > 0 {
			info.Name = strings.TrimPrefix(s.Names[0], "/")
		}
		if s.NetworkSettings != nil {
			for name := range s.NetworkSettings.Networks {
				info.Networks = append(info.Networks, name)
			}
		}
		for _, p := range s.Ports {
			if p.PrivatePort > 0 {
				info.Ports = append(info.Ports, int(p.PrivatePort))
			}
		}
		fresh[s.ID] = info
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	cutoff := now.Add(-inv.staleAfter)
	for id, old := range inv.cache {
		if _, ok := fresh[id]; !ok && old.SeenAt.After(cutoff) {
			fresh[id] = old // not reported this cycle but still within staleAfter: keep
		}
	}
	for id, c := range fresh {
		if c.SeenAt.Before(cutoff) {
			delete(fresh, id)
			slog.Debug("topology: pruned stale container", "container_id", id)
		}
	}
	inv.cache = fresh
	return nil
}

// TargetType is the outcome of target selection (spec §4.9).
type TargetType string

const (
	TargetContainer   TargetType = "container"
	TargetLocalhost   TargetType = "localhost"
	TargetUnreachable TargetType = "unreachable"
)

// Target is the selected ingress target for a (project, port) pair.
type Target struct {
	Type           TargetType
	URL            string
	Recommendation string
}

// SelectTarget implements the five-step algorithm of spec §4.9, given a
// naming-convention prefix that identifies containers belonging to project.
func (inv *Inventory) SelectTarget(project string, port int) Target {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	daemonNetworks := map[string]bool{}
	var daemon *ContainerInfo
	for id, c := range inv.cache {
		if c.Name == inv.daemonContainerName {
			cc := inv.cache[id]
			daemon = &cc
			break
		}
	}
	if daemon != nil {
		for _, n := range daemon.Networks {
			daemonNetworks[n] = true
		}
	}

	for _, c := range inv.cache {
		if !strings.HasPrefix(c.Name, project) {
			continue
		}
		if !hasPort(c.Ports, port) {
			continue
		}
		for _, n := range c.Networks {
			if daemonNetworks[n] {
				return Target{Type: TargetContainer, URL: fmt.Sprintf("http://%s:%d", c.Name, port)}
			}
		}
	}

	if inv.probePort(port) {
		return Target{Type: TargetLocalhost, URL: fmt.Sprintf("http://localhost:%d", port)}
	}

	return Target{
		Type:           TargetUnreachable,
		Recommendation: fmt.Sprintf("no container for project %q exposes port %d on a network shared with the tunnel daemon, and the port is not reachable on localhost", project, port),
	}
}

func hasPort(ports []int, target int) bool {
	for _, p := range ports {
		if p == target {
			return true
		}
	}
	return false
}

// probeLocalPort reports whether port is already bound on localhost (spec
// §4.9 step 4: "the port is reachable from the host").
func probeLocalPort(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
