package hooks

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

type table map[string][]Registration

// Registry stores listeners per hook, ordered by ascending priority with
// registration order kept for equal priorities. Reads are lock free; writes
// copy the affected list and swap the table.
type Registry struct {
	mu        sync.Mutex
	libraries map[string]Library
	table     atomic.Pointer[table]
}

func NewRegistry() *Registry {
	r := &Registry{libraries: make(map[string]Library)}
	r.table.Store(&table{})
	return r
}

// LoadLibrary makes an extension's symbols available to MethodPath lookups.
func (r *Registry) LoadLibrary(listenerID string, lib Library) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libraries[listenerID] = lib
	log.Debug().Str("module", "hooks").Str("listener", listenerID).Int("symbols", len(lib)).Msg("library loaded")
}

// Register adds a listener. Failures are logged and returned but are never
// fatal: the hook is simply absent from the table.
func (r *Registry) Register(listenerID string, h Hook) error {
	if h.Name == "" || (h.Method == nil && h.MethodPath == "") {
		log.Warn().Str("module", "hooks").Str("listener", listenerID).Str("hook", h.Name).Msg("hook method mismatch")
		return ErrInvalidHook
	}
	if !KindOf(h.Name).Valid() {
		log.Warn().Str("module", "hooks").Str("listener", listenerID).Str("hook", h.Name).Msg("unknown hook type, it will never fire")
	}

	reg := Registration{
		ListenerID: listenerID,
		Hook:       h.Name,
		Priority:   h.Priority,
		Method:     h.Method,
		MethodName: listenerID,
	}
	if reg.Priority == 0 {
		reg.Priority = DefaultPriority
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h.MethodPath != "" {
		reg.MethodName = listenerID + "." + h.MethodPath
	}
	if h.Method == nil {
		m, found := r.libraries[listenerID].lookup(h.MethodPath)
		if !found {
			log.Warn().Str("module", "hooks").Str("listener", listenerID).Str("hook", h.Name).Str("method", h.MethodPath).Msg("hook method not found")
			return fmt.Errorf("%w: %s", ErrMethodNotFound, reg.MethodName)
		}
		reg.Method = m
	}

	cur := *r.table.Load()
	list := cur[h.Name]
	for _, e := range list {
		if e.ListenerID == listenerID {
			log.Warn().Str("module", "hooks").Str("listener", listenerID).Str("hook", h.Name).Msg("duplicate registration ignored")
			return ErrDuplicateListener
		}
	}

	pos := len(list)
	for i, e := range list {
		if e.Priority > reg.Priority {
			pos = i
			break
		}
	}
	next := make([]Registration, 0, len(list)+1)
	next = append(next, list[:pos]...)
	next = append(next, reg)
	next = append(next, list[pos:]...)

	r.swap(cur, h.Name, next)
	log.Debug().Str("module", "hooks").Str("listener", listenerID).Str("hook", h.Name).Int("priority", reg.Priority).Msg("hook registered")
	return nil
}

// Unregister drops the (listenerID, hook) pair and reports whether it existed.
func (r *Registry) Unregister(listenerID, hook string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := *r.table.Load()
	list := cur[hook]
	for i, e := range list {
		if e.ListenerID != listenerID {
			continue
		}
		next := make([]Registration, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		r.swap(cur, hook, next)
		return true
	}
	return false
}

// swap must be called with mu held.
func (r *Registry) swap(cur table, hook string, list []Registration) {
	next := make(table, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	if len(list) == 0 {
		delete(next, hook)
	} else {
		next[hook] = list
	}
	r.table.Store(&next)
}

// Listeners returns the current list for hook. The slice must not be modified.
func (r *Registry) Listeners(hook string) []Registration {
	return (*r.table.Load())[hook]
}

func (r *Registry) HasListeners(hook string) bool {
	return len(r.Listeners(hook)) > 0
}

// Hooks lists hook names with at least one listener.
func (r *Registry) Hooks() []string {
	t := *r.table.Load()
	out := make([]string, 0, len(t))
	for name := range t {
		out = append(out, name)
	}
	return out
}
