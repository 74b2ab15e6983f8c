// Package tunnel implements the Tunnel Manager (C9): the CNAME lifecycle as
// a compensating-step pipeline with rollback on failure after DNS creation,
// atomic ingress file writes, and a daemon reload/verify step (spec §4.8).
package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/bmad-run/overseer/ent"
	"github.com/bmad-run/overseer/ent/cname"
	"github.com/bmad-run/overseer/pkg/errs"
	"github.com/bmad-run/overseer/pkg/ports"
	"github.com/bmad-run/overseer/pkg/topology"
	"github.com/google/uuid"
)

// TargetSelector is the subset of *topology.Inventory the Manager needs
// (spec §4.8 step 4, §4.9).
type TargetSelector interface {
	SelectTarget(project string, port int) topology.Target
}

// Manager runs the CNAME create/delete pipeline.
type Manager struct {
	client     *ent.Client
	ports      ports.Directory
	selector   TargetSelector
	dns        DNSRegistrar
	ingress    *IngressFile
	daemon     DaemonReloader
	knownZones map[string]bool
	stableHost string
}

// New creates a Manager. knownZones is the set of DNS zones the runtime may
// create CNAMEs under (spec §4.8 step 3; see pkg/config.TunnelConfig.KnownZones).
func New(client *ent.Client, dir ports.Directory, selector TargetSelector, dns DNSRegistrar, ingress *IngressFile, daemon DaemonReloader, knownZones []string, stableHostname string) *Manager {
	zones := make(map[string]bool, len(knownZones))
	for _, z := range knownZones {
		zones[z] = true
	}
	return &Manager{
		client:     client,
		ports:      dir,
		selector:   selector,
		dns:        dns,
		ingress:    ingress,
		daemon:     daemon,
		knownZones: zones,
		stableHost: stableHostname,
	}
}

// CNAME is the manager's view of one persisted record.
type CNAME struct {
	ID          string
	Subdomain   string
	Domain      string
	Target      string
	TargetType  string
	TargetPort  int
	Project     string
	DNSRecordID string
}

// Create runs the nine-step pipeline of spec §4.8, rolling back the DNS
// record and ingress rule if the daemon reload (step 7) fails.
func (m *Manager) Create(ctx context.Context, project, service, subdomain, domain string) (*CNAME, error) {
	// Step 1: port assignment + live-service probe.
	assignment, err := m.ports.Lookup(ctx, project, service)
	if err != nil {
		return nil, errs.New(errs.NotFound, "no port assignment for project/service", err)
	}
	if !m.ports.InRange(project, assignment.Port) {
		return nil, errs.New(errs.Validation, "assigned port is outside project's range", nil)
	}
	if !portIsOccupied(assignment.Port) {
		return nil, errs.New(errs.Validation, "no live service bound to the assigned port", nil).
			Remediate("start the service before creating a tunnel")
	}

	// Step 2: subdomain availability.
	exists, err := m.client.CNAME.Query().Where(cname.Subdomain(subdomain), cname.Domain(domain)).Exist(ctx)
	if err != nil {
		return nil, errs.New(errs.Internal, "failed to check subdomain availability", err)
	}
	if exists {
		return nil, errs.New(errs.Conflict, "subdomain already in use for this domain", nil)
	}

	// Step 3: known zone.
	if !m.knownZones[domain] {
		return nil, errs.New(errs.Validation, "domain is not a known zone", nil)
	}

	// Step 4: target selection.
	target := m.selector.SelectTarget(project, assignment.Port)
	if target.Type == topology.TargetUnreachable {
		return nil, errs.New(errs.Unreachable, "no reachable target for project/port", nil).
			Remediate(target.Recommendation)
	}

	// Step 5: create DNS record.
	recordID, err := m.dns.CreateCNAME(ctx, subdomain, domain, m.stableHost)
	if err != nil {
		return nil, errs.New(errs.External, "failed to create DNS record", err)
	}

	// Step 6: insert ingress rule.
	hostname := subdomain + "." + domain
	if err := m.ingress.UpsertBeforeCatchAll(hostname, target.URL); err != nil {
		m.rollbackDNS(ctx, recordID)
		return nil, errs.New(errs.External, "failed to write ingress rule", err)
	}

	// Step 7: reload and verify.
	if err := m.reloadAndVerify(ctx); err != nil {
		// Step 8: roll back steps 5 and 6.
		m.rollbackDNS(ctx, recordID)
		_ = m.ingress.Remove(hostname)
		return nil, errs.New(errs.External, "daemon reload failed, rolled back", err)
	}

	// Step 9: persist + audit.
	row, err := m.client.CNAME.Create().
		SetID(uuid.NewString()).
		SetSubdomain(subdomain).
		SetDomain(domain).
		SetTarget(target.URL).
		SetTargetType(cname.TargetType(string(target.Type))).
		SetTargetPort(assignment.Port).
		SetProject(project).
		SetDNSRecordID(recordID).
		Save(ctx)
	if err != nil {
		m.rollbackDNS(ctx, recordID)
		_ = m.ingress.Remove(hostname)
		return nil, errs.New(errs.Internal, "failed to persist CNAME row", err)
	}

	slog.Info("tunnel: created CNAME", "subdomain", subdomain, "domain", domain, "project", project, "target", target.URL)
	return toCNAME(row), nil
}

func (m *Manager) reloadAndVerify(ctx context.Context) error {
	if err := m.daemon.Reload(ctx); err != nil {
		return err
	}
	active, err := m.daemon.Status(ctx)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("daemon reported inactive status after reload")
	}
	return nil
}

func (m *Manager) rollbackDNS(ctx context.Context, recordID string) {
	if err := m.dns.DeleteCNAME(ctx, recordID); err != nil {
		slog.Error("tunnel: rollback failed to delete DNS record", "record_id", recordID, "error", err)
	}
}

// Delete reverses steps 5–9, enforcing that requestingProject owns the
// CNAME (spec §4.8 "Deletion ... with ownership check").
func (m *Manager) Delete(ctx context.Context, id, requestingProject string) error {
	row, err := m.client.CNAME.Get(ctx, id)
	if err != nil {
		if ent.IsNotFound(err) {
			return errs.New(errs.NotFound, "cname not found", err)
		}
		return errs.New(errs.Internal, "failed to get cname", err)
	}
	if row.Project != requestingProject {
		return errs.New(errs.PermissionDenied, "project does not own this CNAME", nil)
	}

	hostname := row.Subdomain + "." + row.Domain
	if err := m.ingress.Remove(hostname); err != nil {
		return errs.New(errs.External, "failed to remove ingress rule", err)
	}
	if err := m.reloadAndVerify(ctx); err != nil {
		return errs.New(errs.External, "daemon reload failed during delete", err)
	}
	if err := m.dns.DeleteCNAME(ctx, row.DNSRecordID); err != nil {
		return errs.New(errs.External, "failed to delete DNS record", err)
	}
	if err := m.client.CNAME.DeleteOneID(id).Exec(ctx); err != nil {
		return errs.New(errs.Internal, "failed to delete cname row", err)
	}
	slog.Info("tunnel: deleted CNAME", "subdomain", row.Subdomain, "domain", row.Domain, "project", row.Project)
	return nil
}

func portIsOccupied(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return true
	}
	_ = ln.Close()
	return false
}

func toCNAME(row *ent.CNAME) *CNAME {
	return &CNAME{
		ID:          row.ID,
		Subdomain:   row.Subdomain,
		Domain:      row.Domain,
		Target:      row.Target,
		TargetType:  string(row.TargetType),
		TargetPort:  row.TargetPort,
		Project:     row.Project,
		DNSRecordID: row.DNSRecordID,
	}
}
