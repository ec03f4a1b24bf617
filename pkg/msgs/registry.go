// Package msgs resolves ROS interface type names to the Go structs goroslib
// needs and converts flow payloads to and from them.
package msgs

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/bluenviron/goroslib/v2/pkg/msg"
	"github.com/pkg/errors"
)

// ErrUnknownType means the interface type was never registered.
var ErrUnknownType = errors.New("unknown interface type")

// Kind is the kind of a ROS interface.
type Kind int

// Interface kinds.
const (
	KindMessage Kind = iota
	KindService
	KindAction
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "srv"
	case KindAction:
		return "action"
	default:
		return "msg"
	}
}

var packageType = reflect.TypeOf(msg.Package(0))

// Type is a registered interface type.
type Type struct {
	Name string
	Kind Kind

	typ   reflect.Type
	parts []reflect.Type
}

// New allocates the interface struct itself, as goroslib expects in its Msg, Srv
// and Action configuration fields.
func (t *Type) New() interface{} {
	return reflect.New(t.typ).Interface()
}

// Part returns the type of the i-th embedded part: request and response for a
// service; goal, result and feedback for an action.
func (t *Type) Part(i int) reflect.Type {
	return t.parts[i]
}

func (t *Type) NewPart(i int) interface{} {
	return reflect.New(t.parts[i]).Interface()
}

// Registry maps type names to interface types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

func NewRegistry() *Registry {
	return &Registry{types: map[string]*Type{}}
}

// Default holds the bundled interface types.
var Default = NewRegistry()

// RegisterMessage registers a message struct such as &std_msgs.String{}.
func (r *Registry) RegisterMessage(name string, proto interface{}) error {
	return r.register(name, KindMessage, proto, 0)
}

// RegisterService registers a service struct embedding its request and response.
func (r *Registry) RegisterService(name string, proto interface{}) error {
	return r.register(name, KindService, proto, 2)
}

// RegisterAction registers an action struct embedding its goal, result and feedback.
func (r *Registry) RegisterAction(name string, proto interface{}) error {
	return r.register(name, KindAction, proto, 3)
}

func (r *Registry) register(name string, kind Kind, proto interface{}, wantParts int) error {
	typ := reflect.TypeOf(proto)
	if typ == nil {
		return errors.Errorf("%s: nil prototype", name)
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return errors.Errorf("%s: prototype must be a struct, got %s", name, typ)
	}

	var parts []reflect.Type
	if wantParts > 0 {
		for i := 0; i < typ.NumField(); i++ {
			f := typ.Field(i)
			if f.Type == packageType || !f.Anonymous {
				continue
			}
			parts = append(parts, f.Type)
		}
		if len(parts) != wantParts {
			return errors.Errorf("%s: expected %d embedded parts, found %d", name, wantParts, len(parts))
		}
	}

	key := Normalize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[key] = &Type{Name: key, Kind: kind, typ: typ, parts: parts}
	return nil
}

// Lookup resolves name, accepting both "pkg/Name" and "pkg/msg/Name" forms.
func (r *Registry) Lookup(name string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[Normalize(name)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "%q", name)
	}
	return t, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize drops the msg/srv/action infix used by ROS 2 style names.
func Normalize(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "/")
	parts := strings.Split(name, "/")
	if len(parts) == 3 {
		switch parts[1] {
		case "msg", "srv", "action":
			return parts[0] + "/" + parts[2]
		}
	}
	return name
}
