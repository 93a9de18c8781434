package main

import (
	"slices"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// fileRequest is an outstanding solicitation for a file. Requests are never
// expired.
type fileRequest struct {
	ID          string
	Requester   string
	Description string
}

// requestRegistry maps recipient username to the requests addressed to it.
type requestRegistry struct {
	byRecipient *xsync.MapOf[string, *requestList]
}

type requestList struct {
	mut   sync.Mutex
	items []fileRequest
}

func newRequestRegistry() *requestRegistry {
	return &requestRegistry{byRecipient: xsync.NewMapOf[string, *requestList]()}
}

func (r *requestRegistry) Add(recipient string, req fileRequest) {
	list, _ := r.byRecipient.LoadOrCompute(recipient, func() *requestList {
		return new(requestList)
	})
	list.mut.Lock()
	list.items = append(list.items, req)
	list.mut.Unlock()
}

// Find looks up a request by id across all recipients.
func (r *requestRegistry) Find(id string) (fileRequest, bool) {
	var found fileRequest
	ok := false
	r.byRecipient.Range(func(_ string, list *requestList) bool {
		list.mut.Lock()
		defer list.mut.Unlock()
		for _, req := range list.items {
			if req.ID == id {
				found, ok = req, true
				return false
			}
		}
		return true
	})
	return found, ok
}

// For returns the requests addressed to recipient.
func (r *requestRegistry) For(recipient string) []fileRequest {
	list, ok := r.byRecipient.Load(recipient)
	if !ok {
		return nil
	}
	list.mut.Lock()
	defer list.mut.Unlock()
	return slices.Clone(list.items)
}

// unreadRegistry holds the notifications a user has not looked at since the
// last VIEW_MESSAGES. The persistent copy lives in the user storage.
type unreadRegistry struct {
	byUser *xsync.MapOf[string, *messageList]
}

type messageList struct {
	mut   sync.Mutex
	items []string
}

func newUnreadRegistry() *unreadRegistry {
	return &unreadRegistry{byUser: xsync.NewMapOf[string, *messageList]()}
}

func (u *unreadRegistry) Add(user, text string) {
	list, _ := u.byUser.LoadOrCompute(user, func() *messageList {
		return new(messageList)
	})
	list.mut.Lock()
	list.items = append(list.items, text)
	list.mut.Unlock()
}

func (u *unreadRegistry) Clear(user string) {
	if list, ok := u.byUser.Load(user); ok {
		list.mut.Lock()
		list.items = nil
		list.mut.Unlock()
	}
}

func (u *unreadRegistry) Count(user string) int {
	list, ok := u.byUser.Load(user)
	if !ok {
		return 0
	}
	list.mut.Lock()
	defer list.mut.Unlock()
	return len(list.items)
}

// presenceRegistry maps a username to its single authenticated connection.
type presenceRegistry struct {
	online *xsync.MapOf[string, *connection]
}

func newPresenceRegistry() *presenceRegistry {
	return &presenceRegistry{online: xsync.NewMapOf[string, *connection]()}
}

// Enter registers c as the connection of user. It fails if user already
// has a connection.
func (p *presenceRegistry) Enter(user string, c *connection) bool {
	if _, loaded := p.online.LoadOrStore(user, c); loaded {
		return false
	}
	metricOnlineUsers.Inc()
	return true
}

// Leave removes user if its registered connection is c.
func (p *presenceRegistry) Leave(user string, c *connection) {
	removed := false
	p.online.Compute(user, func(old *connection, loaded bool) (*connection, bool) {
		if loaded && old == c {
			removed = true
			return nil, true
		}
		return old, !loaded
	})
	if removed {
		metricOnlineUsers.Dec()
	}
}

func (p *presenceRegistry) Get(user string) (*connection, bool) {
	return p.online.Load(user)
}

func (p *presenceRegistry) IsOnline(user string) bool {
	_, ok := p.online.Load(user)
	return ok
}

func (p *presenceRegistry) Len() int {
	return p.online.Size()
}

// userSet is the set of known usernames.
type userSet struct {
	m *xsync.MapOf[string, struct{}]
}

func newUserSet(names ...string) *userSet {
	s := &userSet{m: xsync.NewMapOf[string, struct{}]()}
	for _, name := range names {
		s.Add(name)
	}
	return s
}

func (s *userSet) Add(name string) {
	s.m.Store(name, struct{}{})
}

func (s *userSet) Has(name string) bool {
	_, ok := s.m.Load(name)
	return ok
}

// Sorted returns the known usernames in order.
func (s *userSet) Sorted() []string {
	names := make([]string, 0, s.m.Size())
	s.m.Range(func(name string, _ struct{}) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}
