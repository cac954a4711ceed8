// Package hooks is the extension bus: listeners register against named hooks
// and are fired with one of three delivery semantics selected by the hook's
// type prefix.
//
//	filter:<ns>:<event>  sequential fold, each listener transforms params
//	action:<ns>:<event>  concurrent, result ignored, failures contained
//	static:<ns>:<event>  concurrent, awaited, each listener bounded by a timeout
package hooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const DefaultPriority = 10

type Kind string

const (
	KindFilter Kind = "filter"
	KindAction Kind = "action"
	KindStatic Kind = "static"
)

// KindOf returns the delivery semantics encoded in a hook name.
func KindOf(hook string) Kind {
	prefix, _, _ := strings.Cut(hook, ":")
	return Kind(prefix)
}

func (k Kind) Valid() bool {
	switch k {
	case KindFilter, KindAction, KindStatic:
		return true
	}
	return false
}

var (
	ErrInvalidHook       = errors.New("hook name and method are required")
	ErrMethodNotFound    = errors.New("hook method not found")
	ErrDuplicateListener = errors.New("listener already registered for hook")
	ErrListenerPanic     = errors.New("listener panicked")
	ErrNotStatic         = errors.New("not a static hook")
)

// Method is a listener. Filter listeners return the transformed params;
// action and static listeners may return nil.
type Method func(ctx context.Context, params any) (any, error)

// Hook describes one registration request. Either Method or MethodPath must be
// set; MethodPath is resolved against the listener's Library.
type Hook struct {
	Name       string
	Method     Method
	MethodPath string
	Priority   int
}

// Registration is an entry of the hook table.
// A nil Method means the resolved symbol was not invocable.
type Registration struct {
	ListenerID string
	Hook       string
	Priority   int
	Method     Method
	MethodName string
}

// ListenerError carries the listener that broke a filter chain.
type ListenerError struct {
	Hook       string
	ListenerID string
	Err        error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("hook %s: listener %s: %v", e.Hook, e.ListenerID, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

// Callback adapts a completion-callback listener to a Method. Only the first
// call to done counts. The returned Method gives up when ctx is done.
func Callback(fn func(ctx context.Context, params any, done func(any, error))) Method {
	type result struct {
		v   any
		err error
	}
	return func(ctx context.Context, params any) (any, error) {
		ch := make(chan result, 1)
		fn(ctx, params, func(v any, err error) {
			select {
			case ch <- result{v, err}:
			default:
			}
		})
		select {
		case r := <-ch:
			return r.v, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
