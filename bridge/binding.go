package bridge

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/brokenrobotz/viam-ros-bridge/broker"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

// Binding is a resource created on first use and recreated whenever the name
// it is asked for changes.
type Binding struct {
	bridge    Bridge
	template  ros.Endpoint
	onMessage func(ros.Message)

	mu   sync.Mutex
	name string
	id   broker.ResourceID
}

// NewBinding returns an unmaterialized binding. ep.Name, when set, is the
// static name used for requests that carry none.
func NewBinding(b Bridge, ep ros.Endpoint, onMessage func(ros.Message)) *Binding {
	return &Binding{bridge: b, template: ep, onMessage: onMessage}
}

// Resolve returns the resource for name, creating it or replacing the
// current one as needed. An empty name selects the static name.
func (b *Binding) Resolve(ctx context.Context, name string) (broker.ResourceID, error) {
	if name == "" {
		name = b.template.Name
	}
	if name == "" {
		return "", errors.Wrap(ros.ErrConfigMissing, "topic")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.id != "" && b.name == name {
		return b.id, nil
	}
	if b.id != "" {
		old := b.id
		b.id, b.name = "", ""
		if err := b.bridge.DestroyResource(ctx, old); err != nil {
			return "", err
		}
	}

	ep := b.template
	ep.Name = name
	id, err := b.bridge.CreateResource(ctx, ep, b.onMessage)
	if err != nil {
		return "", err
	}
	b.id, b.name = id, name
	return id, nil
}

func (b *Binding) Current() (broker.ResourceID, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id, b.name
}

// Release destroys the materialized resource.
func (b *Binding) Release(ctx context.Context) error {
	b.mu.Lock()
	id := b.id
	b.id, b.name = "", ""
	b.mu.Unlock()
	if id == "" {
		return nil
	}
	return b.bridge.DestroyResource(ctx, id)
}
