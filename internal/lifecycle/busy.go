package lifecycle

import "sync"

// Busy is a flag shared by several triggers. It is held by one owner at a
// time and stays raised while at least one run of that owner is active.
type Busy struct {
	mu    sync.Mutex
	count int
	owner string
}

// TryEnter raises the flag for owner and returns the function that lowers it
// again. It fails while a different owner holds the flag; the same owner may
// enter again, its newer run superseding the older one through its guard.
// The release function may be called more than once.
func (b *Busy) TryEnter(owner string) (func(), bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count > 0 && b.owner != owner {
		return nil, false
	}
	b.count++
	b.owner = owner
	return b.releaser(), true
}

// Busy reports whether the flag is raised.
func (b *Busy) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count > 0
}

// Owner is the current holder, "" when the flag is lowered.
func (b *Busy) Owner() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.owner
}

func (b *Busy) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.count--
			if b.count == 0 {
				b.owner = ""
			}
			b.mu.Unlock()
		})
	}
}
