package nvm

import (
	"context"
	"sync"

	pioruntime "github.com/stbohne/pico-iox16/runtime"
)

// Medium is the raw flash sector the store persists to: a single 4096-byte
// page read wholesale at startup and atomically erased-then-programmed on
// every write. Implementations are non-blocking: Read and Write may return
// runtime.ErrWouldBlock while busy.
type Medium interface {
	Read() ([PageSize]byte, error)
	Write(page [PageSize]byte) error
}

// Store is the in-memory cached copy of the flash page, kept consistent
// with the backing Medium. Reads never touch the medium; writes update the
// cache before the flash program completes, so a handler that reads
// immediately after Set observes the new values.
//
// The Rust firmware this is ported from relies on running on a single core
// with no preemption to make "update cache, then erase+program" atomic
// with respect to readers. Go has no such guarantee — the dispatcher and
// input-engine goroutines may run on separate OS threads — so an RWMutex
// stands in for that invariant here instead.
type Store struct {
	mu     sync.RWMutex
	page   Page
	medium Medium
}

// Open reads the entire page from medium and decodes it.
func Open(ctx context.Context, medium Medium) (*Store, error) {
	raw, err := pioruntime.Await(ctx, medium.Read)
	if err != nil {
		return nil, err
	}
	page, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return &Store{page: page, medium: medium}, nil
}

// Get returns a snapshot of the current configuration.
func (s *Store) Get() Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page
}

// Set atomically updates the cache and persists the new page: the cache is
// updated immediately, then the sector is erased and reprogrammed. A power
// loss between those two steps yields a default (all-0xFF) page on next
// boot, which is acceptable since configuration is reloadable from the
// host.
func (s *Store) Set(ctx context.Context, page Page) error {
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()

	raw := Encode(page)
	return pioruntime.AwaitErr(ctx, func() error {
		return s.medium.Write(raw)
	})
}
