package abi

import "unsafe"

// enumValue is a tagged-union instance: a discriminant tag plus a fixed
// number of untyped fields, each written and read through a typed accessor.
// Reading a field as the wrong type returns its kind's zero value rather
// than panicking, matching the ABI's InvalidHandle contract of degrading to
// zero/null/false instead of crashing generated code.
type enumValue struct {
	tag    int64
	fields []enumField
}

type enumField struct {
	i64 int64
	f64 float64
	b   bool
	ptr unsafe.Pointer
}

var enums = newHandleTable[*enumValue]()

//export otter_enum_create
func otter_enum_create(tag int64, fieldCount int64) uint64 {
	if fieldCount < 0 {
		return 0
	}

	return enums.insert(&enumValue{tag: tag, fields: make([]enumField, fieldCount)})
}

//export otter_enum_get_tag
func otter_enum_get_tag(handle uint64) int64 {
	v, ok := enums.get(handle)
	if !ok {
		return 0
	}

	return v.tag
}

//export otter_enum_get_field_count
func otter_enum_get_field_count(handle uint64) int64 {
	v, ok := enums.get(handle)
	if !ok {
		return 0
	}

	return int64(len(v.fields))
}

func enumFieldAt(handle uint64, index int64) (*enumValue, int, bool) {
	v, ok := enums.get(handle)
	if !ok || index < 0 || index >= int64(len(v.fields)) {
		return nil, 0, false
	}

	return v, int(index), true
}

//export otter_enum_get_i64
func otter_enum_get_i64(handle uint64, index int64) int64 {
	v, i, ok := enumFieldAt(handle, index)
	if !ok {
		return 0
	}

	return v.fields[i].i64
}

//export otter_enum_set_i64
func otter_enum_set_i64(handle uint64, index int64, value int64) {
	if v, i, ok := enumFieldAt(handle, index); ok {
		v.fields[i].i64 = value
	}
}

//export otter_enum_get_f64
func otter_enum_get_f64(handle uint64, index int64) float64 {
	v, i, ok := enumFieldAt(handle, index)
	if !ok {
		return 0
	}

	return v.fields[i].f64
}

//export otter_enum_set_f64
func otter_enum_set_f64(handle uint64, index int64, value float64) {
	if v, i, ok := enumFieldAt(handle, index); ok {
		v.fields[i].f64 = value
	}
}

//export otter_enum_get_bool
func otter_enum_get_bool(handle uint64, index int64) bool {
	v, i, ok := enumFieldAt(handle, index)
	if !ok {
		return false
	}

	return v.fields[i].b
}

//export otter_enum_set_bool
func otter_enum_set_bool(handle uint64, index int64, value bool) {
	if v, i, ok := enumFieldAt(handle, index); ok {
		v.fields[i].b = value
	}
}

//export otter_enum_get_ptr
func otter_enum_get_ptr(handle uint64, index int64) unsafe.Pointer {
	v, i, ok := enumFieldAt(handle, index)
	if !ok {
		return nil
	}

	return v.fields[i].ptr
}

//export otter_enum_set_ptr
func otter_enum_set_ptr(handle uint64, index int64, value unsafe.Pointer) {
	if v, i, ok := enumFieldAt(handle, index); ok {
		v.fields[i].ptr = value
	}
}

//export otter_enum_destroy
func otter_enum_destroy(handle uint64) bool {
	_, ok := enums.remove(handle)

	return ok
}
