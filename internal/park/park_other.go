//go:build !linux

package park

const futexSupported = false

// NewKind never builds a futex Parker here; these keep Park and Unpark
// total for a zero Parker.

func (p *Parker) futexUnpark() {}

func (p *Parker) futexPark(int64) {}
