package projection

// Document is the root of the hierarchy. It owns its groups.
type Document struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Created     int64   `json:"created"`
	LastUpdated int64   `json:"lastUpdated"`
	UpdatedBy   string  `json:"updatedBy"`
	Version     int64   `json:"-"`
	Groups      []Group `json:"groups"`
}

// Group belongs to exactly one document and owns its notes.
type Group struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Created     int64  `json:"created"`
	LastUpdated int64  `json:"lastUpdated"`
	UpdatedBy   string `json:"updatedBy"`
	// Parent is the identity of the owning document.
	Parent  string `json:"parent"`
	Version int64  `json:"-"`
	Notes   []Note `json:"notes"`
}

// Note belongs to exactly one group.
type Note struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Created     int64  `json:"created"`
	CreatedBy   string `json:"createdBy"`
	UpdatedBy   string `json:"updatedBy"`
	// Parent is the identity of the owning group.
	Parent string `json:"parent"`
}

// DocumentInput is a request to create a document with nested groups.
type DocumentInput struct {
	Title       string       `json:"title" validate:"required,max=500"`
	Description string       `json:"description" validate:"max=10000"`
	UpdatedBy   string       `json:"updatedBy" validate:"max=200"`
	Groups      []GroupInput `json:"groups" validate:"dive"`
}

// GroupInput is a nested group creation request. A zero Created means
// "use the document's creation time".
type GroupInput struct {
	Title       string      `json:"title" validate:"required,max=500"`
	Description string      `json:"description" validate:"max=10000"`
	Created     int64       `json:"created" validate:"gte=0"`
	UpdatedBy   string      `json:"updatedBy" validate:"max=200"`
	Notes       []NoteInput `json:"notes" validate:"dive"`
}

// NoteInput is a note creation request. A zero Created means "now".
type NoteInput struct {
	Title       string `json:"title" validate:"required,max=500"`
	Description string `json:"description" validate:"max=10000"`
	Created     int64  `json:"created" validate:"gte=0"`
	CreatedBy   string `json:"createdBy" validate:"max=200"`
	UpdatedBy   string `json:"updatedBy" validate:"max=200"`
}

// ItemCount returns the number of flat items the input fans out to.
func (in DocumentInput) ItemCount() int {
	n := 1 + len(in.Groups)
	for _, g := range in.Groups {
		n += len(g.Notes)
	}
	return n
}
