package tunnel

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IngressRule is one hostname -> service URL entry (spec §3 "Ingress
// Rule").
type IngressRule struct {
	Hostname string
	Service  string
}

// IngressFile manages the tunnel daemon's ordered rule list as a file on
// disk, written atomically with a backup of the previous version (spec
// §4.8: "Ingress file writes are atomic (write-then-rename) with a backup
// of the previous version").
type IngressFile struct {
	path       string
	backupPath string
}

// NewIngressFile creates an IngressFile bound to path/backupPath (see
// pkg/config.TunnelConfig.IngressFilePath/IngressBackupPath).
func NewIngressFile(path, backupPath string) *IngressFile {
	return &IngressFile{path: path, backupPath: backupPath}
}

// Load reads the current ordered rule list from disk; the catch-all entry
// is not included in the result. A missing file is treated as an empty list.
func (f *IngressFile) Load() ([]IngressRule, error) {
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tunnel: failed to read ingress file: %w", err)
	}
	var rules []IngressRule
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "- service: http_status:404" {
			continue
		}
		parts := strings.SplitN(line, " -> ", 2)
		if len(parts) != 2 {
			continue
		}
		rules = append(rules, IngressRule{Hostname: parts[0], Service: parts[1]})
	}
	return rules, nil
}

// UpsertBeforeCatchAll inserts or replaces the rule for hostname, always
// ahead of the catch-all entry (spec §4.8 step 6).
func (f *IngressFile) UpsertBeforeCatchAll(hostname, service string) error {
	rules, err := f.Load()
	if err != nil {
		return err
	}
	replaced := false
	for i, r := range rules {
		if r.Hostname == hostname {
			rules[i].Service = service
			replaced = true
			break
		}
	}
	if !replaced {
		rules = append(rules, IngressRule{Hostname: hostname, Service: service})
	}
	return f.write(rules)
}

// Remove deletes the rule for hostname, if present.
func (f *IngressFile) Remove(hostname string) error {
	rules, err := f.Load()
	if err != nil {
		return err
	}
	out := rules[:0]
	for _, r := range rules {
		if r.Hostname != hostname {
			out = append(out, r)
		}
	}
	return f.write(out)
}

func (f *IngressFile) write(rules []IngressRule) error {
	sort.Slice(rules, func(i, j int) bool { return rules[i].Hostname < rules[j].Hostname })

	var b strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&b, "%s -> %s\n", r.Hostname, r.Service)
	}
	b.WriteString("- service: http_status:404\n")

	if _, err := os.Stat(f.path); err == nil {
		if err := copyFile(f.path, f.backupPath); err != nil {
			return fmt.Errorf("tunnel: failed to back up ingress file: %w", err)
		}
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("tunnel: failed to write ingress temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("tunnel: failed to rename ingress temp file into place: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0o644)
}
