package filetree

// Event is one change reported by the file-watch feed. It is implemented by
// Create, Update, Delete and Error only.
type Event interface {
	isEvent()
}

// Create reports a new or re-listed entry.
type Create struct {
	Info
}

// Update reports changed mode bits on an existing entry.
type Update struct {
	Path string
	Mode uint32
}

// Delete reports a removed entry.
type Delete struct {
	Path string
}

// Error reports that the server failed to list a directory.
type Error struct {
	Path    string
	Message string
}

func (Create) isEvent() {}
func (Update) isEvent() {}
func (Delete) isEvent() {}
func (Error) isEvent()  {}
