package watcher

// Operation names carried by Event.Op.
const (
	OpCreated  = "created"
	OpModified = "modified"
	OpDeleted  = "deleted"
	OpMoved    = "moved"
)

// Event is one filesystem change under a watched source directory.
type Event struct {
	Op    string
	Path  string
	IsDir bool
}

// Handler receives the events of one registration. Calls for a single
// registration are delivered from one goroutine, in order.
type Handler interface {
	HandleEvent(Event)
}

// Handle is an active watch registration.
type Handle interface {
	// Stop requests the registration to stop delivering events. It does not
	// wait and may be called more than once.
	Stop()
	// Wait blocks until the registration has terminated, including any
	// handler call in progress.
	Wait()
}

// Notifier registers recursive watches on directories.
type Notifier interface {
	Watch(root string, h Handler) (Handle, error)
}
