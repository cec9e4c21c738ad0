package media

import (
	"sync"

	"github.com/google/uuid"
)

// Reference is one uploaded selfie held in memory for the duration of a request.
type Reference struct {
	Filename string
	MIMEType string
	Width    int
	Height   int
	Data     []byte
}

// Session owns the reference buffers of a single request. Release must run on
// every exit path; it overwrites the buffers before dropping them.
type Session struct {
	ID string

	mu       sync.Mutex
	refs     []Reference
	values   map[string]string
	released bool
}

// NewSession wraps the given references in a request-scoped session.
func NewSession(refs ...Reference) *Session {
	return &Session{
		ID:   uuid.NewString(),
		refs: refs,
	}
}

// References returns the held references. The byte slices are shared with the
// session and become zeroed once the session is released.
func (s *Session) References() []Reference {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Reference, len(s.refs))
	copy(out, s.refs)
	return out
}

// Len reports how many references are still held.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}

func (s *Session) add(ref Reference) {
	s.mu.Lock()
	s.refs = append(s.refs, ref)
	s.mu.Unlock()
}

func (s *Session) setValue(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, ok := s.values[name]; !ok {
		s.values[name] = value
	}
}

// Value returns the first value of a text form field sent with the upload.
func (s *Session) Value(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name]
}

// Release zeroes every buffer and forgets them. Safe to call more than once.
func (s *Session) Release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.refs {
		clear(s.refs[i].Data)
		s.refs[i].Data = nil
	}
	s.refs = nil
	s.values = nil
	s.released = true
}

// Released reports whether Release has run.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
