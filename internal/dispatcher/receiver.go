package dispatcher

// Receiver is a subscription to a Dispatcher.
type Receiver[E any] interface {
	// Recv returns a channel that receives published events. The channel is closed when either
	// the Receiver or its Dispatcher is closed.
	Recv() <-chan E
	// Close stops delivery of events. It is safe to call Close more than once.
	Close()
}

type receiver[E any] struct {
	ch         chan E
	dispatcher *Dispatcher[E]
}

func (r *receiver[E]) Recv() <-chan E {
	return r.ch
}

func (r *receiver[E]) Close() {
	if r.dispatcher != nil {
		r.dispatcher.closeHandler(r)
	}
}
