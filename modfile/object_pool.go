package modfile

// objectPool hands out sub-slices of larger blocks.
//
// The parser creates a fresh pool for every module: blocks end up
// owned by the module, so they must never be recycled by the next parse.
type objectPool[T any] struct {
	lists    []objectPoolList[T]
	listSize int
}

type objectPoolList[T any] struct {
	data []T
	used int
}

func (l *objectPoolList[T]) ElemsAvailable() int {
	return len(l.data) - l.used
}

func (l *objectPoolList[T]) MakeSlice(n int) []T {
	slice := l.data[l.used : l.used+n : l.used+n]
	l.used += n
	return slice
}

func initObjectPool[T any](p *objectPool[T], listSize int) {
	p.lists = make([]objectPoolList[T], 0, 4)
	p.listSize = listSize
}

func (p *objectPool[T]) MakeSlice(n int) []T {
	if n > p.listSize {
		// This memory block can't fit in any of the lists,
		// so allocate it here right away.
		return make([]T, n)
	}

	// Only the last list can have free space: the lists are filled in order.
	if len(p.lists) != 0 {
		l := &p.lists[len(p.lists)-1]
		if l.ElemsAvailable() >= n {
			return l.MakeSlice(n)
		}
	}

	p.lists = append(p.lists, objectPoolList[T]{
		data: make([]T, p.listSize),
	})
	l := &p.lists[len(p.lists)-1]
	return l.MakeSlice(n)
}
