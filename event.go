package toolhost

import (
	"github.com/armatrix/toolhost/auth"
	"github.com/armatrix/toolhost/mcp"
)

// EventType identifies the kind of event delivered to Host subscribers.
type EventType string

const (
	EventServer  EventType = "server"
	EventService EventType = "service"
)

// Event is the interface implemented by all events delivered by Subscribe.
type Event interface {
	Type() EventType
}

// ServerEvent reports a tool server lifecycle change or notification.
type ServerEvent struct {
	Kind         mcp.EventType
	Server       string
	Err          error
	Notification *mcp.Notification
}

func (e *ServerEvent) Type() EventType { return EventServer }

// ServiceEvent reports an authorization state transition.
type ServiceEvent struct {
	Status auth.Status
}

func (e *ServiceEvent) Type() EventType { return EventService }
