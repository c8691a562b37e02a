package abi

import "unsafe"

// intIterator walks an integer range [start, end) with a fixed step.
type intIterator struct {
	current, end, step int64
}

func (it *intIterator) hasNext() bool {
	if it.step >= 0 {
		return it.current < it.end
	}

	return it.current > it.end
}

func (it *intIterator) next() int64 {
	v := it.current
	it.current += it.step

	return v
}

// floatIterator walks a float64 range [start, end) with a fixed step.
type floatIterator struct {
	current, end, step float64
}

func (it *floatIterator) hasNext() bool {
	if it.step >= 0 {
		return it.current < it.end
	}

	return it.current > it.end
}

func (it *floatIterator) next() float64 {
	v := it.current
	it.current += it.step

	return v
}

// arrayIterator walks a fixed-stride byte array, yielding each element's
// address as a raw pointer (nil once every element has been yielded).
// Addresses are computed from base, elementSize and count alone; the memory
// behind them is not validated.
type arrayIterator struct {
	base           unsafe.Pointer
	elementSize    uintptr
	count, current int64
}

func (it *arrayIterator) hasNext() bool { return it.current < it.count }

func (it *arrayIterator) next() unsafe.Pointer {
	if it.current >= it.count {
		return nil
	}

	offset := uintptr(it.current) * it.elementSize
	ptr := unsafe.Add(it.base, offset)
	it.current++

	return ptr
}

// stringIterator walks a UTF-8 string rune by rune, yielding each rune's
// codepoint as an int64 (0 once the string is exhausted).
type stringIterator struct {
	runes   []rune
	current int
}

func (it *stringIterator) hasNext() bool { return it.current < len(it.runes) }

func (it *stringIterator) next() int64 {
	if it.current >= len(it.runes) {
		return 0
	}

	r := it.runes[it.current]
	it.current++

	return int64(r)
}

var (
	intIters    = newHandleTable[*intIterator]()
	floatIters  = newHandleTable[*floatIterator]()
	arrayIters  = newHandleTable[*arrayIterator]()
	stringIters = newHandleTable[*stringIterator]()
)

//export otter_iter_range
func otter_iter_range(start, end int64) uint64 {
	return intIters.insert(&intIterator{current: start, end: end, step: 1})
}

//export otter_iter_range_step
func otter_iter_range_step(start, end, step int64) uint64 {
	if step == 0 {
		step = 1
	}

	return intIters.insert(&intIterator{current: start, end: end, step: step})
}

//export otter_iter_range_f64
func otter_iter_range_f64(start, end, step float64) uint64 {
	if step == 0 {
		step = 1
	}

	return floatIters.insert(&floatIterator{current: start, end: end, step: step})
}

//export otter_iter_has_next
func otter_iter_has_next(handle uint64) bool {
	it, ok := intIters.get(handle)

	return ok && it.hasNext()
}

//export otter_iter_next
func otter_iter_next(handle uint64) int64 {
	it, ok := intIters.get(handle)
	if !ok {
		return 0
	}

	return it.next()
}

//export otter_iter_has_next_f64
func otter_iter_has_next_f64(handle uint64) bool {
	it, ok := floatIters.get(handle)

	return ok && it.hasNext()
}

//export otter_iter_next_f64
func otter_iter_next_f64(handle uint64) float64 {
	it, ok := floatIters.get(handle)
	if !ok {
		return 0
	}

	return it.next()
}

//export otter_iter_array
func otter_iter_array(base unsafe.Pointer, elementSize, count int64) uint64 {
	if count < 0 || elementSize < 0 {
		return 0
	}

	return arrayIters.insert(&arrayIterator{base: base, elementSize: uintptr(elementSize), count: count})
}

//export otter_iter_has_next_array
func otter_iter_has_next_array(handle uint64) bool {
	it, ok := arrayIters.get(handle)

	return ok && it.hasNext()
}

//export otter_iter_next_array
func otter_iter_next_array(handle uint64) unsafe.Pointer {
	it, ok := arrayIters.get(handle)
	if !ok {
		return nil
	}

	return it.next()
}

//export otter_iter_string
func otter_iter_string(s string) uint64 {
	return stringIters.insert(&stringIterator{runes: []rune(s)})
}

//export otter_iter_has_next_string
func otter_iter_has_next_string(handle uint64) bool {
	it, ok := stringIters.get(handle)

	return ok && it.hasNext()
}

//export otter_iter_next_string
func otter_iter_next_string(handle uint64) int64 {
	it, ok := stringIters.get(handle)
	if !ok {
		return 0
	}

	return it.next()
}

//export otter_iter_free
func otter_iter_free(handle uint64) {
	intIters.remove(handle)
}

//export otter_iter_free_f64
func otter_iter_free_f64(handle uint64) {
	floatIters.remove(handle)
}

//export otter_iter_free_array
func otter_iter_free_array(handle uint64) {
	arrayIters.remove(handle)
}

//export otter_iter_free_string
func otter_iter_free_string(handle uint64) {
	stringIters.remove(handle)
}
