package core

import "pkt.systems/tabtree/schema"

// EventSink receives tree events from the core.
type EventSink interface {
	OnTreeEvent(event schema.TreeEvent)
}

// Broadcaster publishes mutation commands to peer contexts.
type Broadcaster interface {
	Publish(cmd schema.Command)
}

type nopSink struct{}

func (nopSink) OnTreeEvent(schema.TreeEvent) {}
