package main

import "github.com/puzpuzpuz/xsync/v3"

// uploadSession is an upload between UPLOAD_REQUEST and UPLOAD_COMPLETE.
// Its declared total is reserved from the buffer accountant while it
// exists. Only the owning connection touches the fields after creation.
type uploadSession struct {
	ID          string
	Owner       string
	Filename    string
	Total       int64
	ChunkSize   int
	Public      bool
	RequestID   string
	Requester   string
	Description string

	received int64
	chunks   [][]byte
}

func (s *uploadSession) add(chunk []byte) {
	s.chunks = append(s.chunks, chunk)
	s.received += int64(len(chunk))
}

func (s *uploadSession) Received() int64 {
	return s.received
}

func (s *uploadSession) Remaining() int64 {
	return s.Total - s.received
}

func (s *uploadSession) discard() {
	s.chunks = nil
}

// sessionTable maps file id to upload session.
type sessionTable struct {
	m      *xsync.MapOf[string, *uploadSession]
	buffer *bufferAccountant
}

func newSessionTable(buffer *bufferAccountant) *sessionTable {
	return &sessionTable{
		m:      xsync.NewMapOf[string, *uploadSession](),
		buffer: buffer,
	}
}

func (t *sessionTable) Add(s *uploadSession) {
	t.m.Store(s.ID, s)
}

// Get returns the session with id if it belongs to owner.
func (t *sessionTable) Get(id, owner string) (*uploadSession, bool) {
	s, ok := t.m.Load(id)
	if !ok || s.Owner != owner {
		return nil, false
	}
	return s, true
}

// Remove drops the session, discards its chunks and releases its
// reservation. Removing an unknown id is a no-op.
func (t *sessionTable) Remove(id string) {
	s, ok := t.m.LoadAndDelete(id)
	if !ok {
		return
	}
	s.discard()
	t.buffer.Release(s.Total)
}

func (t *sessionTable) Len() int {
	return t.m.Size()
}
