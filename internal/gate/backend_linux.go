//go:build linux

package gate

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/strongdm/execwall/internal/cgrouptrack"
)

// FanotifyBackend attaches to the host via fanotify permission events
// on FAN_OPEN_EXEC_PERM, the nearest real, compilable, memory-safe
// equivalent of the reference system's fmod_ret exec hook available to
// a userspace process without authoring or loading a BPF object (spec
// §0). Its companion FanotifyObserver subscribes to the non-blocking
// FAN_OPEN_EXEC notification class for the execve-observed trace.
type FanotifyBackend struct {
	fd     int
	cgroup *CgroupResolver
}

// NewFanotifyBackend opens a fanotify permission-event file descriptor
// marked on the host's root filesystem.
func NewFanotifyBackend() (*FanotifyBackend, error) {
	fd, err := unix.FanotifyInit(unix.FAN_CLASS_CONTENT|unix.FAN_CLOEXEC, uint(os.O_RDONLY|unix.O_LARGEFILE))
	if err != nil {
		return nil, fmt.Errorf("gate: fanotify_init: %w", err)
	}
	if err := unix.FanotifyMark(fd, unix.FAN_MARK_ADD|unix.FAN_MARK_FILESYSTEM,
		unix.FAN_OPEN_EXEC_PERM, unix.AT_FDCWD, "/"); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("gate: fanotify_mark: %w", err)
	}
	return &FanotifyBackend{fd: fd, cgroup: NewCgroupResolver()}, nil
}

// Run reads fanotify permission events and drives Engine.EnforceResolved
// for each, responding FAN_ALLOW or FAN_DENY per the returned Decision.
func (b *FanotifyBackend) Run(ctx context.Context, e *Engine) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := unix.Read(b.fd, buf)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EINTR {
				continue
			}
			return fmt.Errorf("gate: fanotify read: %w", err)
		}

		for off := 0; off+unix.SizeofFanotifyEventMetadata <= n; {
			meta := (*unix.FanotifyEventMetadata)(unsafe.Pointer(&buf[off]))
			if meta.Vers != unix.FANOTIFY_METADATA_VERSION {
				break
			}
			b.handleEvent(e, meta)
			if meta.Event_len == 0 {
				break
			}
			off += int(meta.Event_len)
		}
	}
}

func (b *FanotifyBackend) handleEvent(e *Engine, meta *unix.FanotifyEventMetadata) {
	fd := int(meta.Fd)
	if fd < 0 {
		return
	}
	defer unix.Close(fd)

	path, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd))
	decision := DecisionAllow
	if err == nil {
		cgid := b.cgroup.CgroupIDForPID(int(meta.Pid))
		decision = e.EnforceResolved(path, cgid)
	}

	resp := unix.FanotifyResponse{Fd: meta.Fd, Response: unix.FAN_ALLOW}
	if decision == DecisionDeny {
		resp.Response = unix.FAN_DENY
	}
	respBuf := make([]byte, unix.SizeofFanotifyResponse)
	binary.LittleEndian.PutUint32(respBuf[0:4], uint32(resp.Fd))
	binary.LittleEndian.PutUint32(respBuf[4:8], resp.Response)
	unix.Write(b.fd, respBuf)
}

// Close releases the fanotify file descriptor.
func (b *FanotifyBackend) Close() error {
	return unix.Close(b.fd)
}

// FanotifyObserver drives component D (spec §4.4, the execution-trace
// emitter): it marks the non-blocking FAN_OPEN_EXEC class instead of
// FanotifyBackend's permission-gated FAN_OPEN_EXEC_PERM, so it never
// holds up the exec it observes, and publishes an observe-mode record
// for every completed execution rather than testing it against an
// allowlist.
type FanotifyObserver struct {
	fd     int
	cgroup *CgroupResolver
}

// NewFanotifyObserver opens a fanotify notification (non-permission)
// file descriptor marked on the host's root filesystem.
func NewFanotifyObserver() (*FanotifyObserver, error) {
	fd, err := unix.FanotifyInit(unix.FAN_CLASS_NOTIF|unix.FAN_CLOEXEC, uint(os.O_RDONLY|unix.O_LARGEFILE))
	if err != nil {
		return nil, fmt.Errorf("gate: fanotify_init (observer): %w", err)
	}
	if err := unix.FanotifyMark(fd, unix.FAN_MARK_ADD|unix.FAN_MARK_FILESYSTEM,
		unix.FAN_OPEN_EXEC, unix.AT_FDCWD, "/"); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("gate: fanotify_mark (observer): %w", err)
	}
	return &FanotifyObserver{fd: fd, cgroup: NewCgroupResolver()}, nil
}

// Run reads fanotify notification events and drives Engine.ObserveResolved
// for each; a failed path lookup drops the event, per spec §7.
func (b *FanotifyObserver) Run(ctx context.Context, e *Engine) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := unix.Read(b.fd, buf)
		if err != nil {
			if err == syscall.EAGAIN || err == syscall.EINTR {
				continue
			}
			return fmt.Errorf("gate: fanotify read (observer): %w", err)
		}

		for off := 0; off+unix.SizeofFanotifyEventMetadata <= n; {
			meta := (*unix.FanotifyEventMetadata)(unsafe.Pointer(&buf[off]))
			if meta.Vers != unix.FANOTIFY_METADATA_VERSION {
				break
			}
			b.handleEvent(e, meta)
			if meta.Event_len == 0 {
				break
			}
			off += int(meta.Event_len)
		}
	}
}

func (b *FanotifyObserver) handleEvent(e *Engine, meta *unix.FanotifyEventMetadata) {
	fd := int(meta.Fd)
	if fd < 0 {
		return
	}
	defer unix.Close(fd)

	path, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd))
	if err != nil {
		return
	}
	cgid := b.cgroup.CgroupIDForPID(int(meta.Pid))
	e.ObserveResolved(path, cgid)
}

// Close releases the fanotify file descriptor.
func (b *FanotifyObserver) Close() error {
	return unix.Close(b.fd)
}

// CgroupResolver derives a task's cgroup id the same way spec §4.2
// does for the unified hierarchy: the kernel defines a cgroup's id as
// its kernfs node id, which on a mounted cgroupfs is the directory's
// inode number.
type CgroupResolver struct {
	mountpoint string
}

// NewCgroupResolver assumes the conventional unified-hierarchy mount.
func NewCgroupResolver() *CgroupResolver {
	return &CgroupResolver{mountpoint: "/sys/fs/cgroup"}
}

// CgroupIDForPID returns 0 (unavailable) rather than an error on any
// failure, matching spec §3's "zero denotes unavailable, non-fatal".
func (r *CgroupResolver) CgroupIDForPID(pid int) cgrouptrack.CgroupID {
	rel, err := r.cgroupPathForPID(pid)
	if err != nil {
		return 0
	}
	var st unix.Stat_t
	if err := unix.Stat(filepath.Join(r.mountpoint, rel), &st); err != nil {
		return 0
	}
	return cgrouptrack.CgroupID(st.Ino)
}

func (r *CgroupResolver) cgroupPathForPID(pid int) (string, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/cgroup", pid))
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// Unified hierarchy lines look like "0::/path/to/cgroup".
		line := scanner.Text()
		parts := strings.SplitN(line, ":", 3)
		if len(parts) == 3 && parts[0] == "0" && parts[1] == "" {
			return parts[2], nil
		}
	}
	return "", fmt.Errorf("gate: no unified-hierarchy cgroup line for pid %d", pid)
}
