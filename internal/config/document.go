// Package config is the load-time configuration layer, plus the one
// concrete policy loader this module ships so the engine is
// exercisable end-to-end: a TOML document read with
// github.com/pelletier/go-toml/v2.
package config

import "github.com/strongdm/execwall/internal/cgrouptrack"

// LoadRecord is the read-only load-time record, addressable from all
// hooks once the engine is constructed.
type LoadRecord struct {
	CgroupFSMagic    uint64 `toml:"cgroup_fs_magic"`
	V1SubsysIndex    uint32 `toml:"v1_subsys_index"`
	DebugMode        bool   `toml:"debug_mode"`
	LargeKeysCapable bool   `toml:"large_keys_capable"`
}

// Hierarchy derives the hierarchy kind from the configured magic.
func (r LoadRecord) Hierarchy() cgrouptrack.HierarchyKind {
	return cgrouptrack.HierarchyFromMagic(r.CgroupFSMagic)
}

// PolicyEntry is one userspace-authored policy: its id, enforcement
// mode, and exact-match allowlist. TrackerSeeds names cgroup paths (or
// identifiers, depending on backend) that should be seeded as their
// own tracker at load time.
type PolicyEntry struct {
	ID           uint64   `toml:"id"`
	Mode         string   `toml:"mode"` // "monitor" or "enforce"
	Allowlist    []string `toml:"allowlist"`
	TrackerSeeds []string `toml:"tracker_seeds"`
}

// ModeValue parses Mode into a cgrouptrack.Mode, defaulting to monitor
// on anything unrecognized: absence or misconfiguration falls back to
// monitor, never to enforce.
func (p PolicyEntry) ModeValue() cgrouptrack.Mode {
	if p.Mode == "enforce" {
		return cgrouptrack.ModeEnforce
	}
	return cgrouptrack.ModeMonitor
}

// Document is the full on-disk configuration: the load-time record and
// the policy set it governs.
type Document struct {
	Load     LoadRecord    `toml:"load"`
	Policies []PolicyEntry `toml:"policies"`
}

// Default returns a Document with the unified (v2) hierarchy assumed
// and no policies: the posture Load falls back to when its file is
// missing.
func Default() *Document {
	return &Document{
		Load: LoadRecord{
			CgroupFSMagic:    cgrouptrack.MagicV2,
			LargeKeysCapable: true,
		},
	}
}
