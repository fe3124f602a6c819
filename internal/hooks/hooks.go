// Package hooks provides ordered extension points of pure transforms
package hooks

// Chain is an ordered list of transforms applied at one extension point. Every function
// receives the previous one's result.
type Chain[T any] []func(T) T

// Apply runs every transform in order
func (c Chain[T]) Apply(v T) T {
	for _, fn := range c {
		v = fn(v)
	}
	return v
}

// Append returns a chain with fns registered after the existing transforms
func (c Chain[T]) Append(fns ...func(T) T) Chain[T] {
	out := make(Chain[T], 0, len(c)+len(fns))
	out = append(out, c...)
	return append(out, fns...)
}
