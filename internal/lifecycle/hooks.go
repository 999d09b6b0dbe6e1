package lifecycle

import "context"

// Hook describes a named shutdown hook.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// CloserHook adapts a Close() error method to a Hook.
func CloserHook(name string, closer interface{ Close() error }) Hook {
	return Hook{Name: name, Fn: func(context.Context) error { return closer.Close() }}
}
