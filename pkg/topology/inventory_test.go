package topology

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocker struct {
	summaries []container.Summary
}

func (f *fakeDocker) ContainerList(ctx context.Context, opts container.ListOptions) ([]container.Summary, error) {
	return f.summaries, nil
}

func newTestInventory(summaries []container.Summary) *Inventory {
	return &Inventory{
		docker:              &fakeDocker{summaries: summaries},
		daemonContainerName: "tunnel-daemon",
		staleAfter:          5 * time.Minute,
		probePort:           func(port int) bool { return false },
		cache:               make(map[string]ContainerInfo),
	}
}

func summaryWithNetwork(id, name string, ports []uint16, networks ...string) container.Summary {
	ns := &container.NetworkSettingsSummary{Networks: map[string]*network.EndpointSettings{}}
	for _, n := range networks {
		ns.Networks[n] = &network.EndpointSettings{}
	}
	var portList []container.Port
	for _, p := range ports {
		portList = append(portList, container.Port{PrivatePort: p})
	}
	return container.Summary{
		ID:              id,
		Names:           []string{"/" + name},
		Status:          "running",
		NetworkSettings: ns,
		Ports:           portList,
	}
}

func TestSelectTarget_PrefersSharedNetworkContainer(t *testing.T) {
	daemon := summaryWithNetwork("daemon-id", "tunnel-daemon", nil, "net-a")
	app := summaryWithNetwork("app-id", "proj-1-app", []uint16{8080}, "net-a")

	inv := newTestInventory([]container.Summary{daemon, app})
	require.NoError(t, inv.Poll(context.Background()))

	target := inv.SelectTarget("proj-1", 8080)
	assert.Equal(t, TargetContainer, target.Type)
	assert.Equal(t, "http://proj-1-app:8080", target.URL)
}

func TestSelectTarget_FallsBackToLocalhostWhenReachable(t *testing.T) {
	daemon := summaryWithNetwork("daemon-id", "tunnel-daemon", nil, "net-a")
	app := summaryWithNetwork("app-id", "proj-1-app", []uint16{8080}, "net-b")

	inv := newTestInventory([]container.Summary{daemon, app})
	require.NoError(t, inv.Poll(context.Background()))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	inv.probePort = func(p int) bool { return p == port }

	target := inv.SelectTarget("proj-1", port)
	assert.Equal(t, TargetLocalhost, target.Type)
}

func TestSelectTarget_UnreachableWhenNoCandidateAndPortClosed(t *testing.T) {
	inv := newTestInventory(nil)
	require.NoError(t, inv.Poll(context.Background()))

	target := inv.SelectTarget("proj-1", 9999)
	assert.Equal(t, TargetUnreachable, target.Type)
	assert.NotEmpty(t, target.Recommendation)
}

func TestPoll_PrunesStaleEntries(t *testing.T) {
	inv := newTestInventory(nil)
	inv.cache["stale-id"] = ContainerInfo{ID: "stale-id", Name: "old", SeenAt: time.Now().Add(-time.Hour)}

	require.NoError(t, inv.Poll(context.Background()))

	inv.mu.RLock()
	defer inv.mu.RUnlock()
	_, ok := inv.cache["stale-id"]
	assert.False(t, ok)
}
