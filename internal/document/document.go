package document

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned when editing a document that has been closed.
	ErrClosed = errors.New("document is closed")
	// ErrNotFound is returned for unknown document ids.
	ErrNotFound = errors.New("document not found")
)

// Selection is a half-open range of rune offsets. From == To is a cursor.
type Selection struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// View is a point-in-time copy of a document.
type View struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Selection Selection `json:"selection"`
	Notices   []string  `json:"notices"`
	Closed    bool      `json:"closed"`
}

// Document is an editable text buffer with a selection and a notice log.
type Document struct {
	id string

	mu      sync.Mutex
	text    []rune
	sel     Selection
	notices []string
	closed  bool
	onClose []func()
}

// New creates an open document. The selection is clamped to the text.
func New(text string, sel Selection) *Document {
	d := &Document{id: uuid.NewString(), text: []rune(text)}
	d.sel = d.clamp(sel)
	return d
}

func (d *Document) ID() string { return d.id }

func (d *Document) clamp(sel Selection) Selection {
	n := len(d.text)
	sel.From = min(max(sel.From, 0), n)
	sel.To = min(max(sel.To, 0), n)
	if sel.From > sel.To {
		sel.From, sel.To = sel.To, sel.From
	}
	return sel
}

// SelectedText returns the text covered by the selection.
func (d *Document) SelectedText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.text[d.sel.From:d.sel.To])
}

// ReplaceSelection swaps the selected range for text and leaves the cursor
// after the inserted text.
func (d *Document) ReplaceSelection(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.splice(d.sel.From, d.sel.To, []rune(text))
	return nil
}

// InsertAtCursor inserts text at the end of the selection and leaves the
// cursor after it. Successive inserts therefore append in call order.
func (d *Document) InsertAtCursor(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.splice(d.sel.To, d.sel.To, []rune(text))
	return nil
}

func (d *Document) splice(from, to int, insert []rune) {
	text := make([]rune, 0, from+len(insert)+len(d.text)-to)
	text = append(text, d.text[:from]...)
	text = append(text, insert...)
	d.text = append(text, d.text[to:]...)
	cursor := from + len(insert)
	d.sel = Selection{From: cursor, To: cursor}
}

// Notify records a transient notice. Notices on a closed document are dropped.
func (d *Document) Notify(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.notices = append(d.notices, message)
}

// OnClose registers fn to run when the document closes. fn runs immediately
// if the document is already closed.
func (d *Document) OnClose(fn func()) {
	d.mu.Lock()
	if !d.closed {
		d.onClose = append(d.onClose, fn)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	fn()
}

// Close marks the document closed and runs the OnClose callbacks once.
func (d *Document) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	callbacks := d.onClose
	d.onClose = nil
	d.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Closed reports whether Close has been called.
func (d *Document) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// View returns a copy of the current state.
func (d *Document) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return View{
		ID:        d.id,
		Text:      string(d.text),
		Selection: d.sel,
		Notices:   slices.Clone(d.notices),
		Closed:    d.closed,
	}
}

// Store keeps open documents in memory.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewStore() *Store {
	return &Store{docs: make(map[string]*Document)}
}

// Create adds a new document.
func (s *Store) Create(text string, sel Selection) *Document {
	d := New(text, sel)
	s.mu.Lock()
	s.docs[d.id] = d
	s.mu.Unlock()
	return d
}

// Get returns the document with id.
func (s *Store) Get(id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// Delete removes and closes the document with id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	d, ok := s.docs[id]
	delete(s.docs, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	d.Close()
	return nil
}

// Len reports the number of open documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
