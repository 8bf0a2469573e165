package cgrouptrack

import "sync"

// PolicyBindingMap is the tracker cgroup id -> policy id mapping (spec
// §3). It is populated entirely by userspace (here: by the config
// loader, internal/config); the enforcement path only ever reads it.
type PolicyBindingMap struct {
	mu  sync.RWMutex
	byT map[CgroupID]PolicyID
}

// NewPolicyBindingMap returns an empty binding map.
func NewPolicyBindingMap() *PolicyBindingMap {
	return &PolicyBindingMap{byT: make(map[CgroupID]PolicyID)}
}

// Bind records that tracker id t is governed by policy p. Returns false
// if the map is at capacity.
func (m *PolicyBindingMap) Bind(t CgroupID, p PolicyID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byT[t]; !exists && len(m.byT) >= MaxEntries {
		return false
	}
	m.byT[t] = p
	return true
}

// Lookup returns the policy bound to tracker id t, and whether a
// binding exists.
func (m *PolicyBindingMap) Lookup(t CgroupID) (PolicyID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byT[t]
	return p, ok
}

// PolicyModeMap is the policy id -> mode mapping (spec §3). Absence of
// an entry for a bound policy is a configuration bug; callers must
// treat it as "monitor", per spec §7(b).
type PolicyModeMap struct {
	mu     sync.RWMutex
	byPolr map[PolicyID]Mode
}

// NewPolicyModeMap returns an empty mode map.
func NewPolicyModeMap() *PolicyModeMap {
	return &PolicyModeMap{byPolr: make(map[PolicyID]Mode)}
}

// Set records the enforcement mode for a policy.
func (m *PolicyModeMap) Set(p PolicyID, mode Mode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byPolr[p]; !exists && len(m.byPolr) >= MaxEntries {
		return false
	}
	m.byPolr[p] = mode
	return true
}

// Lookup returns the mode for policy p and whether it was configured.
func (m *PolicyModeMap) Lookup(p PolicyID) (Mode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mode, ok := m.byPolr[p]
	return mode, ok
}
