package rpc

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/iancoleman/strcase"
	"github.com/rs/zerolog/log"
)

// Namespace registers handlers under one namespace prefix.
type Namespace struct {
	router *Router
	name   string
}

func (n *Namespace) Name() string { return n.name }

// Handle registers h under "<namespace>.<path>"; path may be nested.
func (n *Namespace) Handle(path string, h Handler) error {
	return n.router.Handle(n.name+"."+path, h)
}

func (n *Namespace) Before(fn BeforeFunc) *Namespace {
	n.router.Before(n.name, fn)
	return n
}

// Mount registers every exported method of svc that has the Handler
// signature, named in lowerCamel case (GetOnlineCount -> getOnlineCount).
// It returns how many methods were mounted.
func (n *Namespace) Mount(svc any) int {
	v := reflect.ValueOf(svc)
	t := v.Type()
	mounted := 0
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		fn, ok := v.Method(i).Interface().(func(context.Context, Socket, json.RawMessage) (any, error))
		if !ok {
			log.Debug().Str("module", "app.rpc").Str("namespace", n.name).Str("method", m.Name).Msg("skipping method with foreign signature")
			continue
		}
		if err := n.Handle(strcase.ToLowerCamel(m.Name), fn); err != nil {
			log.Warn().Err(err).Str("module", "app.rpc").Str("method", m.Name).Msg("mount")
			continue
		}
		mounted++
	}
	return mounted
}
