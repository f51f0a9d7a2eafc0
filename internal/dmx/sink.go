package dmx

// Sink consumes complete frames, once per dispatch tick.
type Sink interface {
	Name() string
	Send(frame Frame) error
	// Close blacks the output out and releases the device.
	Close() error
}

// SinkStatus is what the status API reports per sink.
type SinkStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Frames    uint64 `json:"frames"`
}

// StatusReporter is implemented by sinks that can report liveness.
type StatusReporter interface {
	Status() SinkStatus
}

// NopSink stands in for absent hardware.
type NopSink struct {
	name string
}

func NewNopSink(name string) *NopSink {
	return &NopSink{name: name}
}

func (n *NopSink) Name() string { return n.name }

func (n *NopSink) Send(Frame) error { return nil }

func (n *NopSink) Close() error { return nil }

func (n *NopSink) Status() SinkStatus { return SinkStatus{Name: n.name} }
