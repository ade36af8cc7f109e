package normalize

// IDAllocator hands out synthetic ids for rows whose source id is
// missing or unparsable. The next id is one greater than the highest id
// observed so far, skipping ids already taken in this run.
type IDAllocator struct {
	max  int64
	used map[int64]struct{}
}

// NewIDAllocator starts allocation above floor (0 for a fresh run, the
// table's max id when resuming).
func NewIDAllocator(floor int64) *IDAllocator {
	return &IDAllocator{max: floor, used: make(map[int64]struct{})}
}

// Observe records a source-supplied id.
func (a *IDAllocator) Observe(id int64) {
	a.used[id] = struct{}{}
	if id > a.max {
		a.max = id
	}
}

// Used reports whether id was observed or allocated.
func (a *IDAllocator) Used(id int64) bool {
	_, ok := a.used[id]
	return ok
}

// Next allocates and reserves a fresh id.
func (a *IDAllocator) Next() int64 {
	id := a.max + 1
	for a.Used(id) {
		id++
	}
	a.Observe(id)
	return id
}
