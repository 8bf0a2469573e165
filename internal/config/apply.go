package config

import "github.com/strongdm/execwall/internal/cgrouptrack"

// Engine is the subset of gate.Engine's exported state Apply needs.
// Defined locally (rather than importing internal/gate) so config has
// no dependency on gate; gate does not import config either.
type Engine interface {
	SeedTracker(cgid, tracker cgrouptrack.CgroupID) bool
	BindPolicy(tracker cgrouptrack.CgroupID, policy cgrouptrack.PolicyID) bool
	SetPolicyMode(policy cgrouptrack.PolicyID, mode cgrouptrack.Mode) bool
	InsertAllowlistEntry(policy uint64, path string) bool
}

// Apply seeds an engine's maps from doc: the load-time act of
// populating the tracker map, policy binding map, mode map, and
// matcher store, which an external userspace loader is responsible
// for before any enforcement decision can be made.
func Apply(doc *Document, e Engine) {
	for _, p := range doc.Policies {
		e.SetPolicyMode(cgrouptrack.PolicyID(p.ID), p.ModeValue())
		for _, path := range p.Allowlist {
			e.InsertAllowlistEntry(p.ID, path)
		}
		for _, seed := range p.TrackerSeeds {
			tracker := cgrouptrack.CgroupID(hashSeed(seed))
			e.SeedTracker(tracker, tracker)
			e.BindPolicy(tracker, cgrouptrack.PolicyID(p.ID))
		}
	}
}

// hashSeed turns a cgroup path string into a stable 64-bit id when the
// caller has not already resolved a real cgroup id (e.g. in tests or
// before the host filesystem is mounted). A real deployment supplies
// actual kernfs-derived ids via SeedTracker directly.
func hashSeed(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
