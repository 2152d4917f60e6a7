package utils

// BufferedChan is a channel with an unbounded buffer: sends on the inlet never block for long, whatever the pace of the reader.
//
// Items come out of the outlet in the order they went in. Closing the BufferedChan lets the items still buffered drain before the outlet is closed.
type BufferedChan[T any] struct {
	inChan  chan T
	outChan chan T
}

// NewBufferedChan creates a new BufferedChan instance.
func NewBufferedChan[T any]() *BufferedChan[T] {
	c := BufferedChan[T]{
		inChan:  make(chan T),
		outChan: make(chan T),
	}
	go c.run()
	return &c
}

// Inlet returns the input side of the BufferedChan.
func (b *BufferedChan[T]) Inlet() chan<- T {
	return b.inChan
}

// Outlet returns the output side of the BufferedChan.
func (b *BufferedChan[T]) Outlet() <-chan T {
	return b.outChan
}

// Close closes the inlet. The outlet is closed once every buffered item was read.
func (b *BufferedChan[T]) Close() {
	close(b.inChan)
}

func (b *BufferedChan[T]) run() {
	defer close(b.outChan)

	buffer := make([]T, 0)
	in := b.inChan
	for in != nil || len(buffer) > 0 {
		if len(buffer) == 0 {
			msg, ok := <-in
			if !ok {
				return
			}
			buffer = append(buffer, msg)
			continue
		}

		select {
		case msg, ok := <-in:
			if !ok {
				// Stop accepting; a nil channel is never selected.
				in = nil
				continue
			}
			buffer = append(buffer, msg)
		case b.outChan <- buffer[0]:
			var zero T
			buffer[0] = zero
			buffer = buffer[1:]
		}
	}
}
