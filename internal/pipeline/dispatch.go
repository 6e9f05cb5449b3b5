package pipeline

const eventQueueSize = 256

// dispatcher hands events to the sink from a single goroutine so delivery
// order matches generation order.
type dispatcher struct {
	events chan func()
	done   chan struct{}
}

func newDispatcher(executor func(func())) *dispatcher {
	d := &dispatcher{
		events: make(chan func(), eventQueueSize),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(d.done)
		for fn := range d.events {
			executor(fn)
		}
	}()
	return d
}

func (d *dispatcher) post(fn func()) {
	d.events <- fn
}

// close stops accepting events and waits until every queued event has been
// handed to the executor.
func (d *dispatcher) close() {
	close(d.events)
	<-d.done
}
