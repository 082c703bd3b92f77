package lessons

import (
	"strings"
	"sync"

	"github.com/edutrack-uz/portal-client/transport"
)

// Attachment draft types.
const (
	AttachmentLink = "link"
	AttachmentFile = "file"
)

// DraftAttachment is one descriptor in a homework draft. Link
// attachments carry a URL; file attachments are matched by name against
// the held file handles and carry no URL until uploaded.
type DraftAttachment struct {
	Type string `json:"type"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Draft accumulates attachments and a comment for one homework
// submission. It survives a failed submit untouched so the student can
// retry without re-entering anything.
type Draft struct {
	mu          sync.Mutex
	comment     string
	attachments []DraftAttachment
	files       []transport.File
}

// NewDraft creates an empty draft.
func NewDraft() *Draft {
	return &Draft{}
}

// SetComment sets the free-text comment.
func (d *Draft) SetComment(comment string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.comment = comment
}

// AddLink appends a link attachment.
func (d *Draft) AddLink(name, url string) error {
	if strings.TrimSpace(url) == "" {
		return transport.NewValidationError("link attachment %q needs a URL", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attachments = append(d.attachments, DraftAttachment{Type: AttachmentLink, Name: name, URL: url})
	return nil
}

// AddFile appends a file attachment: one descriptor plus the backing
// file handle.
func (d *Draft) AddFile(name string, content []byte) error {
	if strings.TrimSpace(name) == "" {
		return transport.NewValidationError("file attachment needs a name")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attachments = append(d.attachments, DraftAttachment{Type: AttachmentFile, Name: name})
	d.files = append(d.files, transport.File{Name: name, Content: content})
	return nil
}

// Remove drops the attachment at index i, and for file attachments the
// first matching held file as well, keeping descriptors and handles in
// step.
func (d *Draft) Remove(i int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.attachments) {
		return transport.NewValidationError("no attachment at index %d", i)
	}
	removed := d.attachments[i]
	d.attachments = append(d.attachments[:i], d.attachments[i+1:]...)
	if removed.Type != AttachmentFile {
		return nil
	}
	for j, f := range d.files {
		if f.Name == removed.Name {
			d.files = append(d.files[:j], d.files[j+1:]...)
			break
		}
	}
	return nil
}

// Attachments returns a copy of the descriptor list.
func (d *Draft) Attachments() []DraftAttachment {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DraftAttachment, len(d.attachments))
	copy(out, d.attachments)
	return out
}

// Clear empties the draft after a successful submission.
func (d *Draft) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.comment = ""
	d.attachments = nil
	d.files = nil
}

// payload snapshots the draft for submission. It rejects a draft whose
// file descriptors and held files have drifted apart, before any
// network call is made.
func (d *Draft) payload() (comment string, attachments []DraftAttachment, files []transport.File, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fileDescriptors := 0
	for _, a := range d.attachments {
		if a.Type == AttachmentFile {
			fileDescriptors++
		}
	}
	if fileDescriptors != len(d.files) {
		return "", nil, nil, transport.NewValidationError(
			"draft out of sync: %d file attachments but %d files held", fileDescriptors, len(d.files))
	}

	attachments = make([]DraftAttachment, len(d.attachments))
	copy(attachments, d.attachments)
	files = make([]transport.File, len(d.files))
	copy(files, d.files)
	return d.comment, attachments, files, nil
}
