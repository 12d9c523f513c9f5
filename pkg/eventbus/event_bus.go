package eventbus

import (
	"reflect"

	"github.com/sirupsen/logrus"
)

// EventBus is a minimal in-process publisher. Handlers are plain functions;
// a published event is delivered to every subscribed function whose
// parameter list matches the event arguments.
type EventBus interface {
	Publish(args ...any)
	Subscribe(handler any)
	SubscribersCount() int
}

type publisherImpl struct {
	log         *logrus.Logger
	subscribers []any
}

func NewEventPublisher(log *logrus.Logger) EventBus {
	return &publisherImpl{log: log}
}

func matchSignature(handler any, args []any) bool {
	t := reflect.TypeOf(handler)
	if t.Kind() != reflect.Func || t.NumIn() != len(args) {
		return false
	}
	for i, arg := range args {
		paramType := t.In(i)
		if arg == nil {
			if paramType.Kind() != reflect.Interface && paramType.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		argType := reflect.TypeOf(arg)
		if paramType.Kind() == reflect.Interface {
			if !argType.Implements(paramType) {
				return false
			}
			continue
		}
		if !argType.AssignableTo(paramType) {
			return false
		}
	}
	return true
}

func (p *publisherImpl) Publish(args ...any) {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		in[i] = reflect.ValueOf(arg)
	}

	for _, handler := range p.subscribers {
		if !matchSignature(handler, args) {
			continue
		}
		v := reflect.ValueOf(handler)
		func() {
			defer func() {
				if r := recover(); r != nil && p.log != nil {
					p.log.Errorf("eventbus: handler %s panicked: %v", v.Type().String(), r)
				}
			}()
			v.Call(in)
		}()
	}
}

func (p *publisherImpl) Subscribe(handler any) {
	if reflect.TypeOf(handler).Kind() != reflect.Func {
		panic("handler must be a function")
	}
	p.subscribers = append(p.subscribers, handler)
}

func (p *publisherImpl) SubscribersCount() int {
	return len(p.subscribers)
}
