/*
Package view reinterprets raw byte ranges as fixed-size values.

A view never owns the bytes it reads. Only plain types are accepted: booleans,
numbers, and arrays or structs made of them. Anything holding a pointer
(strings, slices, maps, interfaces, channels, funcs) is rejected when the view
is constructed, since those values cannot survive a trip through untyped memory.

	raw := make([]byte, 4*view.SizeOf[Position]())
	positions := view.NewSlice[Position](raw)
	positions.Set(2, Position{X: 1, Y: 2})
	p := positions.Get(2)

Values are copied in and out, so the byte range does not need to be aligned
for T.
*/
package view

import (
	"fmt"
	"iter"
	"reflect"
	"sync"
	"unsafe"
)

var plainCache sync.Map // reflect.Type -> bool

// IsPlain reports whether T can be stored in and restored from raw bytes.
func IsPlain[T any]() bool {
	return isPlain(reflect.TypeFor[T]())
}

// IsPlainType is IsPlain for a runtime type.
func IsPlainType(t reflect.Type) bool {
	return isPlain(t)
}

func isPlain(t reflect.Type) bool {
	if cached, ok := plainCache.Load(t); ok {
		return cached.(bool)
	}
	plain := checkPlain(t)
	plainCache.Store(t, plain)
	return plain
}

func checkPlain(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return checkPlain(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !checkPlain(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MustBePlain panics unless T is plain.
func MustBePlain[T any]() {
	if !IsPlain[T]() {
		panic(fmt.Sprintf("view: %v is not a plain fixed-size type", reflect.TypeFor[T]()))
	}
}

// SizeOf returns the number of bytes a T occupies in raw storage.
func SizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// BytesOf exposes the memory of *p as a byte slice. The slice aliases p.
func BytesOf[T any](p *T) []byte {
	MustBePlain[T]()
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
}

func rawBytes[T any](p *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
}

// Value views a byte range as a single T.
type Value[T any] struct {
	raw []byte
}

// NewValue panics if T is not plain or b is too short to hold a T.
func NewValue[T any](b []byte) Value[T] {
	MustBePlain[T]()
	size := SizeOf[T]()
	if size > len(b) {
		panic(fmt.Sprintf("view: value of %d bytes does not fit in %d bytes", size, len(b)))
	}
	return Value[T]{raw: b[:size:size]}
}

func (v Value[T]) Get() T {
	var out T
	copy(rawBytes(&out), v.raw)
	return out
}

func (v Value[T]) Set(value T) {
	copy(v.raw, rawBytes(&value))
}

// Slice views a byte range as a dense array of T.
type Slice[T any] struct {
	raw  []byte
	size int
}

// NewSlice panics if T is not plain. Trailing bytes that cannot hold a whole
// T are not addressable.
func NewSlice[T any](b []byte) Slice[T] {
	MustBePlain[T]()
	return Slice[T]{raw: b, size: SizeOf[T]()}
}

// Len returns the number of whole elements in the range. Zero-sized types
// always report zero.
func (s Slice[T]) Len() int {
	if s.size == 0 {
		return 0
	}
	return len(s.raw) / s.size
}

func (s Slice[T]) Get(index int) T {
	s.check(index)
	var out T
	copy(rawBytes(&out), s.raw[index*s.size:])
	return out
}

func (s Slice[T]) Set(index int, value T) {
	s.check(index)
	copy(s.raw[index*s.size:(index+1)*s.size], rawBytes(&value))
}

// Bytes returns the raw range backing element index.
func (s Slice[T]) Bytes(index int) []byte {
	s.check(index)
	return s.raw[index*s.size : (index+1)*s.size : (index+1)*s.size]
}

// All yields every whole element in order.
func (s Slice[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i := range s.Len() {
			if !yield(i, s.Get(i)) {
				return
			}
		}
	}
}

func (s Slice[T]) check(index int) {
	if index < 0 || (index+1)*s.size > len(s.raw) {
		panic(fmt.Sprintf("view: index %d out of range for %d bytes of %d-byte elements", index, len(s.raw), s.size))
	}
}
