package ports

import (
	"context"
	"fmt"
)

// FakeDirectory is an in-memory Directory for tests and for standalone
// deployments that manage assignments by hand.
type FakeDirectory struct {
	assignments map[string]Assignment
	ranges      map[string][2]int
}

// NewFakeDirectory creates an empty FakeDirectory.
func NewFakeDirectory() *FakeDirectory {
	return &FakeDirectory{
		assignments: make(map[string]Assignment),
		ranges:      make(map[string][2]int),
	}
}

// Add registers an assignment.
func (f *FakeDirectory) Add(a Assignment) {
	f.assignments[key(a.Project, a.Service)] = a
}

// SetRange declares the inclusive port range owned by project.
func (f *FakeDirectory) SetRange(project string, lo, hi int) {
	f.ranges[project] = [2]int{lo, hi}
}

func (f *FakeDirectory) Lookup(ctx context.Context, project, service string) (*Assignment, error) {
	a, ok := f.assignments[key(project, service)]
	if !ok {
		return nil, fmt.Errorf("ports: no assignment for %s/%s", project, service)
	}
	return &a, nil
}

func (f *FakeDirectory) InRange(project string, port int) bool {
	r, ok := f.ranges[project]
	if !ok {
		return false
	}
	return port >= r[0] && port <= r[1]
}

func key(project, service string) string { return project + "/" + service }
