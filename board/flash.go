package board

import (
	"os"
	"sync"

	"github.com/stbohne/pico-iox16/nvm"
)

// FileFlash backs nvm.Medium with a plain file standing in for the
// physical flash sector: "erase" overwrites the whole page with 0xFF,
// "program" writes the new bytes, and both run inside a mutex-guarded
// critical section standing in for spec §4.2's "interrupt-inhibiting
// critical section" — there are no interrupts to inhibit on the hosts
// this runs on, but the mutex preserves the same atomicity-of-observation
// contract: no reader ever sees a partially written page.
type FileFlash struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFileFlash opens (creating if necessary) a file to back the flash
// page at path. A freshly created file is zero-length; OpenFileFlash pads
// it out to a full, erased (all-0xFF) sector so Medium.Read always sees
// nvm.PageSize bytes.
func OpenFileFlash(path string) (*FileFlash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() != nvm.PageSize {
		erased := [nvm.PageSize]byte{}
		for i := range erased {
			erased[i] = 0xFF
		}
		if _, err := f.WriteAt(erased[:], 0); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &FileFlash{file: f}, nil
}

// Read returns the entire backing page.
func (m *FileFlash) Read() ([nvm.PageSize]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var page [nvm.PageSize]byte
	_, err := m.file.ReadAt(page[:], 0)
	return page, err
}

// Write erases (all-0xFF) then programs the new page, matching the
// physical controller's erase-then-program contract. A process crash
// between the two steps leaves the file all-0xFF, which nvm.Decode turns
// into the documented defaults on next open — the same acceptable
// power-loss behaviour spec §4.2 describes for the real flash.
func (m *FileFlash) Write(page [nvm.PageSize]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	erased := [nvm.PageSize]byte{}
	for i := range erased {
		erased[i] = 0xFF
	}
	if _, err := m.file.WriteAt(erased[:], 0); err != nil {
		return err
	}
	if _, err := m.file.WriteAt(page[:], 0); err != nil {
		return err
	}
	return m.file.Sync()
}

func (m *FileFlash) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
