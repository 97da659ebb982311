package types

// DownloadState is a single progress event for a tracked transfer.
// Max is the declared content length, or 0 when the server did not
// declare one.
type DownloadState struct {
	Current int64
	Max     int64
}

// ProgressSink receives progress events from a long-running task.
// Implementations must never block the producer; events may be
// buffered or dropped, but a send must always return promptly.
type ProgressSink interface {
	Send(DownloadState)
}

// ChannelSink is a ProgressSink backed by a buffered channel. When the
// buffer is full the event is dropped rather than blocking the task.
type ChannelSink struct {
	C chan DownloadState
}

// NewChannelSink returns a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan DownloadState, buffer)}
}

// Send implements ProgressSink.
func (s *ChannelSink) Send(state DownloadState) {
	select {
	case s.C <- state:
	default:
	}
}

// Close closes the event channel, signalling consumers that the task
// has finished.
func (s *ChannelSink) Close() {
	close(s.C)
}
