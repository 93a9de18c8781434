package main

import (
	"sync"
	"testing"

	"github.com/d4l3k/messagediff"
)

func TestPresenceSingleEntry(t *testing.T) {
	p := newPresenceRegistry()
	first, second := &connection{id: "1"}, &connection{id: "2"}

	if !p.Enter("carol", first) {
		t.Fatal("first login refused")
	}
	if p.Enter("carol", second) {
		t.Fatal("second login accepted")
	}

	// A connection that never got in must not evict the one that did.
	p.Leave("carol", second)
	if c, ok := p.Get("carol"); !ok || c != first {
		t.Fatal("presence lost by foreign leave")
	}
	p.Leave("carol", first)
	if p.IsOnline("carol") {
		t.Fatal("still online after leave")
	}
	p.Leave("carol", first)
}

func TestPresenceConcurrentLogin(t *testing.T) {
	p := newPresenceRegistry()
	var wg sync.WaitGroup
	var mut sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.Enter("dave", &connection{}) {
				mut.Lock()
				wins++
				mut.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 || p.Len() != 1 {
		t.Fatalf("wins %d, entries %d", wins, p.Len())
	}
}

func TestRequestRegistry(t *testing.T) {
	r := newRequestRegistry()
	r.Add("bob", fileRequest{ID: "REQ_1", Requester: "alice", Description: "a"})
	r.Add("carol", fileRequest{ID: "REQ_1", Requester: "alice", Description: "a"})
	r.Add("bob", fileRequest{ID: "REQ_2", Requester: "carol", Description: "b"})

	req, ok := r.Find("REQ_2")
	if !ok {
		t.Fatal("REQ_2 not found")
	}
	if diff, equal := messagediff.PrettyDiff(fileRequest{ID: "REQ_2", Requester: "carol", Description: "b"}, req); !equal {
		t.Fatalf("request:\n%s", diff)
	}
	if _, ok := r.Find("REQ_3"); ok {
		t.Fatal("REQ_3 found")
	}
	if got := r.For("bob"); len(got) != 2 {
		t.Fatalf("bob has %d requests", len(got))
	}
	if got := r.For("nobody"); got != nil {
		t.Fatalf("nobody has requests %v", got)
	}
}

func TestUnreadRegistry(t *testing.T) {
	u := newUnreadRegistry()
	u.Add("bob", "one")
	u.Add("bob", "two")
	if u.Count("bob") != 2 || u.Count("alice") != 0 {
		t.Fatal("unexpected counts")
	}
	u.Clear("bob")
	u.Clear("alice")
	if u.Count("bob") != 0 {
		t.Fatal("not cleared")
	}
}

func TestUserSetSorted(t *testing.T) {
	s := newUserSet("carol", "alice")
	s.Add("bob")
	s.Add("alice")
	if diff, equal := messagediff.PrettyDiff([]string{"alice", "bob", "carol"}, s.Sorted()); !equal {
		t.Fatalf("sorted:\n%s", diff)
	}
	if !s.Has("bob") || s.Has("dave") {
		t.Fatal("membership")
	}
}

func TestSessionTableRemoveReleases(t *testing.T) {
	b := newBufferAccountant(100)
	tbl := newSessionTable(b)
	if !b.Reserve(30) {
		t.Fatal("reserve")
	}
	s := &uploadSession{ID: "FILE_1", Owner: "alice", Total: 30}
	tbl.Add(s)

	if _, ok := tbl.Get("FILE_1", "bob"); ok {
		t.Fatal("foreign owner got the session")
	}
	got, ok := tbl.Get("FILE_1", "alice")
	if !ok || got != s {
		t.Fatal("owner lookup failed")
	}
	got.add([]byte("abc"))
	if got.Received() != 3 || got.Remaining() != 27 {
		t.Fatalf("received %d remaining %d", got.Received(), got.Remaining())
	}

	tbl.Remove("FILE_1")
	tbl.Remove("FILE_1")
	if b.Reserved() != 0 || tbl.Len() != 0 {
		t.Fatalf("reserved %d, sessions %d", b.Reserved(), tbl.Len())
	}
}
