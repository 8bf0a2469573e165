// Package cgroupfs detects which cgroup hierarchy a live host is
// running (legacy v1, unified v2, or hybrid) by parsing
// /proc/self/mountinfo. cmd/execwalld uses it to pick the cgroup root
// to reconcile when no -cgroup-root is given; DefaultMagic reports the
// matching filesystem magic, which the config loader does not consult.
package cgroupfs

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/strongdm/execwall/internal/cgrouptrack"
)

// Mounts describes the detected cgroup filesystem mounts on the host.
type Mounts struct {
	Kind       cgrouptrack.HierarchyKind
	V2Root     string
	V1Roots    []string
	HasV1      bool
	HasV2      bool
}

// Detect parses /proc/self/mountinfo for cgroup and cgroup2 mounts.
//
// The mountinfo line format has a " - fstype source superopts" suffix;
// we only need fstype and, for the preceding fields, the mount point
// (field 5, see proc(5)).
func Detect() (Mounts, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return Mounts{}, fmt.Errorf("open mountinfo: %w", err)
	}
	defer f.Close()

	var m Mounts
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		sep := " - "
		i := strings.LastIndex(line, sep)
		if i < 0 {
			continue
		}
		tail := strings.Fields(line[i+len(sep):])
		if len(tail) < 1 {
			continue
		}
		fstype := tail[0]

		pre := strings.Fields(line[:i])
		if len(pre) < 5 {
			continue
		}
		mountPoint := pre[4]

		switch fstype {
		case "cgroup2":
			m.HasV2 = true
			m.V2Root = mountPoint
		case "cgroup":
			m.HasV1 = true
			m.V1Roots = append(m.V1Roots, mountPoint)
		}
	}
	if err := sc.Err(); err != nil {
		return Mounts{}, fmt.Errorf("scan mountinfo: %w", err)
	}

	switch {
	case m.HasV2:
		m.Kind = cgrouptrack.HierarchyV2
	case m.HasV1:
		m.Kind = cgrouptrack.HierarchyV1
	default:
		return Mounts{}, fmt.Errorf("no cgroup mounts found")
	}
	return m, nil
}

// DefaultMagic reports the cgroup filesystem magic number matching the
// detected hierarchy, for use as a config default.
func (m Mounts) DefaultMagic() uint64 {
	if m.Kind == cgrouptrack.HierarchyV1 {
		return cgrouptrack.MagicV1
	}
	return cgrouptrack.MagicV2
}

// Root returns the mount point execwall should watch: the unified
// root on v2, or the first legacy hierarchy root otherwise.
func (m Mounts) Root() string {
	if m.Kind == cgrouptrack.HierarchyV2 {
		return m.V2Root
	}
	if len(m.V1Roots) > 0 {
		return m.V1Roots[0]
	}
	return ""
}
