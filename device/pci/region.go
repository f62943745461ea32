//go:build linux

package pci

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MappedRegion is a BAR of a claimed PCI device mapped shared read/write into
// the process. It implements device.Region. 32-bit accesses use atomic loads
// and stores so they reach the bus as single transactions.
type MappedRegion struct {
	file *os.File
	mem  []byte
}

// Claim opens the sysfs resource file of the requested BAR, takes an
// exclusive non-blocking lock on it and maps it. The lock is held until
// Release is called.
func (d *Device) Claim(bar int) (*MappedRegion, error) {
	path := d.resourcePath(bar)

	f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s BAR%d", ErrNoSuchResource, d.Addr, bar)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s BAR%d", ErrResourceBusy, d.Addr, bar)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Flock(fd, unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Size <= 0 {
		unix.Flock(fd, unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("%w: %s BAR%d is empty", ErrNoSuchResource, d.Addr, bar)
	}

	mem, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Flock(fd, unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &MappedRegion{file: f, mem: mem}, nil
}

// Release unmaps the region and drops the claim. It is safe to call more
// than once.
func (r *MappedRegion) Release() error {
	if r.file == nil {
		return nil
	}

	var errs []error
	if err := unix.Munmap(r.mem); err != nil {
		errs = append(errs, fmt.Errorf("munmap: %w", err))
	}
	if err := unix.Flock(int(r.file.Fd()), unix.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}

	r.file, r.mem = nil, nil
	return errors.Join(errs...)
}

// Size returns the size of the mapping in bytes.
func (r *MappedRegion) Size() uint32 { return uint32(len(r.mem)) }

func (r *MappedRegion) Read8(off uint32) uint8 {
	return *(*uint8)(unsafe.Pointer(&r.mem[off]))
}

func (r *MappedRegion) Read16(off uint32) uint16 {
	_ = r.mem[off+1]
	return *(*uint16)(unsafe.Pointer(&r.mem[off]))
}

func (r *MappedRegion) Read32(off uint32) uint32 {
	_ = r.mem[off+3]
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&r.mem[off])))
}

func (r *MappedRegion) Write8(off uint32, v uint8) {
	*(*uint8)(unsafe.Pointer(&r.mem[off])) = v
}

func (r *MappedRegion) Write16(off uint32, v uint16) {
	_ = r.mem[off+1]
	*(*uint16)(unsafe.Pointer(&r.mem[off])) = v
}

func (r *MappedRegion) Write32(off uint32, v uint32) {
	_ = r.mem[off+3]
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&r.mem[off])), v)
}
