package tunnel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FakeDNSRegistrar is an in-memory DNSRegistrar for tests and standalone
// deployments with no real DNS provider wired.
type FakeDNSRegistrar struct {
	mu      sync.Mutex
	records map[string]string
	FailCreate bool
}

// NewFakeDNSRegistrar creates an empty FakeDNSRegistrar.
func NewFakeDNSRegistrar() *FakeDNSRegistrar {
	return &FakeDNSRegistrar{records: make(map[string]string)}
}

func (f *FakeDNSRegistrar) CreateCNAME(ctx context.Context, subdomain, domain, target string) (string, error) {
	if f.FailCreate {
		return "", fmt.Errorf("fake dns: create failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.records[id] = fmt.Sprintf("%s.%s -> %s", subdomain, domain, target)
	return id, nil
}

func (f *FakeDNSRegistrar) DeleteCNAME(ctx context.Context, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[recordID]; !ok {
		return fmt.Errorf("fake dns: record %s not found", recordID)
	}
	delete(f.records, recordID)
	return nil
}

// Exists reports whether recordID is still present, for test assertions.
func (f *FakeDNSRegistrar) Exists(recordID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[recordID]
	return ok
}

// FakeDaemonReloader is an in-memory DaemonReloader for tests.
type FakeDaemonReloader struct {
	mu        sync.Mutex
	FailReload bool
	reloads   int
}

func NewFakeDaemonReloader() *FakeDaemonReloader { return &FakeDaemonReloader{} }

func (f *FakeDaemonReloader) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	if f.FailReload {
		return fmt.Errorf("fake daemon: reload failed")
	}
	return nil
}

func (f *FakeDaemonReloader) Status(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.FailReload, nil
}

// Reloads reports how many times Reload was called, for test assertions.
func (f *FakeDaemonReloader) Reloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reloads
}
