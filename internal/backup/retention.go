package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BackupInfo holds metadata for retention decisions.
type BackupInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// RetentionPolicy decides which backups to keep.
type RetentionPolicy interface {
	Apply(backups []BackupInfo) (keep []BackupInfo)
}

// CountPolicy keeps the N most recent backups.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount backups (assumed sorted newest-first).
func (p *CountPolicy) Apply(backups []BackupInfo) []BackupInfo {
	if len(backups) <= p.MaxCount {
		return backups
	}
	return backups[:p.MaxCount]
}

// AgePolicy keeps backups newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
	now    func() time.Time
}

// Apply keeps backups whose CreatedAt is within MaxAge of now.
func (p *AgePolicy) Apply(backups []BackupInfo) []BackupInfo {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []BackupInfo
	for _, b := range backups {
		if b.CreatedAt.After(cutoff) {
			keep = append(keep, b)
		}
	}
	return keep
}

// AnyPolicy keeps a backup if any sub-policy keeps it.
type AnyPolicy []RetentionPolicy

// Apply returns the union of the sub-policies, preserving order.
func (p AnyPolicy) Apply(backups []BackupInfo) []BackupInfo {
	kept := make(map[string]bool)
	for _, policy := range p {
		for _, b := range policy.Apply(backups) {
			kept[b.Path] = true
		}
	}
	var result []BackupInfo
	for _, b := range backups {
		if kept[b.Path] {
			result = append(result, b)
		}
	}
	return result
}

// NewPolicy builds a policy from a count and an age string. Zero values
// disable a rule; with both disabled the last 10 snapshots are kept.
func NewPolicy(maxCount int, maxAge string) (RetentionPolicy, error) {
	var policies AnyPolicy
	if maxCount > 0 {
		policies = append(policies, &CountPolicy{MaxCount: maxCount})
	}
	if maxAge != "" {
		d, err := ParseDuration(maxAge)
		if err != nil {
			return nil, err
		}
		policies = append(policies, &AgePolicy{MaxAge: d})
	}
	switch len(policies) {
	case 0:
		return &CountPolicy{MaxCount: 10}, nil
	case 1:
		return policies[0], nil
	default:
		return policies, nil
	}
}

// ListBackups scans dir for snapshot files, newest first. CreatedAt comes
// from the timestamp in the file name.
func ListBackups(dir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := parseBackupName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: created,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// ApplyRetention deletes backups in dir not kept by policy.
func ApplyRetention(dir string, policy RetentionPolicy) (deleted []string, err error) {
	backups, err := ListBackups(dir)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool)
	for _, b := range policy.Apply(backups) {
		keep[b.Path] = true
	}

	for _, b := range backups {
		if keep[b.Path] {
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(b.Path), err)
		}
		deleted = append(deleted, b.Path)
	}
	return deleted, nil
}

// ParseDuration parses durations like "30d", "2w" or "720h".
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch s[len(s)-1] {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix in %q", s)
	}
}

func parseBackupName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".json.gz") {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".json.gz")
	t, err := time.Parse(fileTimeLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
