package builder

import "github.com/gammazero/deque"

// freeList hands out block group addresses. Recycled addresses are served
// first in FIFO order; once they run out fresh addresses are issued until
// limit is reached.
type freeList struct {
	recycled deque.Deque[uint32]
	next     uint32
	limit    uint32
}

func newFreeList(next, limit uint32) *freeList {
	return &freeList{next: next, limit: limit}
}

func (f *freeList) push(group uint32) {
	f.recycled.PushBack(group)
}

func (f *freeList) pop() (uint32, bool) {
	if f.recycled.Len() != 0 {
		return f.recycled.PopFront(), true
	}
	if f.next >= f.limit {
		return 0, false
	}
	group := f.next
	f.next++
	return group, true
}

// The number of addresses that can still be handed out.
func (f *freeList) len() uint32 {
	var fresh uint32
	if f.next < f.limit {
		fresh = f.limit - f.next
	}
	return uint32(f.recycled.Len()) + fresh
}
