package dispatcher

import (
	"context"
	"fmt"

	"github.com/garyjia/p2p-approval/internal/domain/event"
)

// Handler reacts to a committed transition
type Handler func(ctx context.Context, evt *event.Event) error

// subscription is a named handler bound to one event type
type subscription struct {
	name    string
	handler Handler
}

// call runs the handler, turning a panic into an error
func (s subscription) call(ctx context.Context, evt *event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", s.name, r)
		}
	}()
	return s.handler(ctx, evt)
}
