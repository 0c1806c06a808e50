package tabtree

import (
	"pkt.systems/tabtree/core"
	"pkt.systems/tabtree/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnTreeEvent(event schema.TreeEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTreeEvent(event)
	}
}
