// Command overseer is the multi-tenant supervisor runtime's single binary:
// it wires every component (C1-C11) together and starts the Tool
// Dispatcher's HTTP server plus the background workers (spawn sweep,
// health monitor, topology poller, retention cleanup).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"

	"github.com/bmad-run/overseer/pkg/checkpoint"
	"github.com/bmad-run/overseer/pkg/cleanup"
	"github.com/bmad-run/overseer/pkg/config"
	"github.com/bmad-run/overseer/pkg/database"
	"github.com/bmad-run/overseer/pkg/dispatch"
	"github.com/bmad-run/overseer/pkg/events"
	"github.com/bmad-run/overseer/pkg/handoff"
	"github.com/bmad-run/overseer/pkg/healthmon"
	"github.com/bmad-run/overseer/pkg/lineage"
	"github.com/bmad-run/overseer/pkg/ports"
	"github.com/bmad-run/overseer/pkg/registry"
	"github.com/bmad-run/overseer/pkg/restart"
	"github.com/bmad-run/overseer/pkg/secrets"
	"github.com/bmad-run/overseer/pkg/spawn"
	"github.com/bmad-run/overseer/pkg/topology"
	"github.com/bmad-run/overseer/pkg/tunnel"
	"github.com/bmad-run/overseer/pkg/version"
)

func main() {
	slog.Info("starting overseer", "version", version.Full())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("overseer exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configDir := getEnvOrDefault("OVERSEER_CONFIG_DIR", "/etc/overseer")
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return err
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	entClient := dbClient.Client

	reg := registry.New(entClient, cfg.InstanceRegistry.StaleAfter)
	lineageStore := lineage.New(entClient, dbClient.DB())
	lineageStore.SetPublisher(events.NewLineagePublisherAdapter(events.NewEventPublisher(dbClient.DB())))
	checkpoints := checkpoint.New(entClient)
	spawns := spawn.New(entClient, cfg.Spawn.StallThreshold, cfg.Spawn.AbandonedThreshold)

	handoffsDir := getEnvOrDefault("OVERSEER_HANDOFFS_DIR", "/var/lib/overseer/handoffs")
	if err := os.MkdirAll(handoffsDir, 0o755); err != nil {
		return err
	}
	orchestrator := handoff.New(entClient, reg, handoff.NewExecTmux(), handoff.DirFileWaiter{})

	monitor := healthmon.New(entClient, reg, spawns, checkpoints, orchestrator, handoffsDir)

	dockerCli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	defer dockerCli.Close()
	inventory := topology.New(dockerCli, cfg.Tunnel.DaemonContainerName, cfg.Topology.StaleAfter)

	portsDir := ports.NewFakeDirectory()
	secretsStore := secrets.NewFakeStore(map[string]string{
		cfg.Secrets.DNSEditTokenPath: os.Getenv("OVERSEER_DNS_EDIT_TOKEN"),
		cfg.Secrets.DNSZoneIDPath:    os.Getenv("OVERSEER_DNS_ZONE_ID"),
	})
	dnsRegistrar := tunnel.NewFakeDNSRegistrar()
	daemonReloader := tunnel.NewDaemonReloader(cfg.Tunnel.DaemonControl, cfg.Tunnel.DaemonContainerName)
	ingress := tunnel.NewIngressFile(cfg.Tunnel.IngressFilePath, cfg.Tunnel.IngressBackupPath)
	tunnelMgr := tunnel.New(entClient, portsDir, inventory, dnsRegistrar, ingress, daemonReloader,
		cfg.Tunnel.KnownZones, cfg.Tunnel.StableHostname)

	restartMgr := restart.New(daemonReloaderAsDaemon{daemonReloader}, 3)

	cleanupSvc := cleanup.NewService(entClient, checkpoints, cfg.Checkpoint.CleanupInterval,
		cfg.Checkpoint.RetentionDays, 90)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	catchup := events.NewEventServiceAdapter(lineageStore)
	connMgr := events.NewConnectionManager(catchup, 10*time.Second)
	listener := events.NewNotifyListener(dsn(dbCfg), connMgr)
	connMgr.SetListener(listener)
	if err := listener.Start(ctx); err != nil {
		return err
	}
	defer listener.Stop(context.Background())

	stopWorkers := startBackgroundWorkers(ctx, spawns, monitor, inventory, daemonReloader, restartMgr, cfg)
	defer stopWorkers()

	srv := dispatch.New(dispatch.Dependencies{
		DB:               dbClient,
		Registry:         reg,
		Lineage:          lineageStore,
		Checkpoints:      checkpoints,
		Spawns:           spawns,
		Tunnel:           tunnelMgr,
		Ports:            portsDir,
		Secrets:          secretsStore,
		Events:           connMgr,
		AllowedWSOrigins: cfg.Dispatcher.AllowedWSOrigins,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.Dispatcher.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	slog.Info("tool dispatcher listening", "addr", cfg.Dispatcher.ListenAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startBackgroundWorkers launches the periodic workers not owned by
// pkg/cleanup (spawn sweep, health monitor probes, topology poll, and the
// daemon status probe that feeds the Restart Manager), each on its own
// ticker, stopped together via the returned func.
func startBackgroundWorkers(ctx context.Context, spawns *spawn.Tracker, monitor *healthmon.Monitor, inventory *topology.Inventory, daemonReloader tunnel.DaemonReloader, restartMgr *restart.Manager, cfg *config.Config) func() {
	workerCtx, cancel := context.WithCancel(ctx)

	go runTicker(workerCtx, cfg.Spawn.SweepInterval, func() {
		if _, err := spawns.Sweep(workerCtx); err != nil {
			slog.Error("spawn sweep failed", "error", err)
		}
	})

	go runTicker(workerCtx, cfg.HealthMonitor.ProbeInterval, func() {
		monitor.RunOnce(workerCtx)
	})

	go runTicker(workerCtx, cfg.Topology.PollInterval, func() {
		if err := inventory.Poll(workerCtx); err != nil {
			slog.Error("topology poll failed", "error", err)
		}
	})

	go runTicker(workerCtx, cfg.HealthMonitor.ProbeInterval, func() {
		_, err := daemonReloader.Status(workerCtx)
		restartMgr.RecordProbe(workerCtx, err)
	})

	return cancel
}

func runTicker(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	fn()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// daemonReloaderAsDaemon adapts a tunnel.DaemonReloader to restart.Daemon,
// since both ultimately control the same daemon process; Restart here maps
// to the reloader's own Reload so a single daemon implementation backs both
// the Restart Manager (pkg/restart, driven by the daemon status probe) and the Tunnel
// Manager's post-ingress-change reload (C9 step 7).
type daemonReloaderAsDaemon struct {
	reloader tunnel.DaemonReloader
}

func (d daemonReloaderAsDaemon) Restart(ctx context.Context) error {
	return d.reloader.Reload(ctx)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// dsn builds the libpq connection string the NOTIFY listener's dedicated
// pgx connection needs, matching the DSN format database.NewClient uses for
// its pooled connection.
func dsn(cfg database.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)
}
