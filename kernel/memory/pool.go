package memory

import (
	"sync"

	kerrors "github.com/axeberg/axebergos/errors"
)

// Pool is a fixed-size-block allocator with O(1) allocate/free via a free
// list, used by subsystems that need many same-sized allocations without
// going through the general region accounting.
type Pool struct {
	mu        sync.Mutex
	blockSize int
	blocks    [][]byte
	free      []int // indices into blocks that are currently free
	inUse     map[int]bool
}

// NewPool returns a pool of blockSize-byte blocks with no blocks yet
// allocated from the backing arena.
func NewPool(blockSize int) *Pool {
	return &Pool{blockSize: blockSize, inUse: make(map[int]bool)}
}

// Get returns a free block, growing the backing arena by one block if
// none is free.
func (p *Pool) Get() ([]byte, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		idx := len(p.blocks)
		p.blocks = append(p.blocks, make([]byte, p.blockSize))
		p.inUse[idx] = true
		return p.blocks[idx], idx
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse[idx] = true
	for i := range p.blocks[idx] {
		p.blocks[idx][i] = 0
	}
	return p.blocks[idx], idx
}

// Put returns block idx to the free list.
func (p *Pool) Put(idx int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.blocks) || !p.inUse[idx] {
		return kerrors.ErrInvalidArgument
	}
	delete(p.inUse, idx)
	p.free = append(p.free, idx)
	return nil
}

// Len reports how many blocks are currently checked out.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}
