package main

import (
	"context"
	"net"
	"testing"
	"time"

	"fileshare/client"
	"fileshare/common"

	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T, modify func(*Config)) (*Server, string) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.APIListen = ""
	cfg.PasswordCost = bcrypt.MinCost
	if modify != nil {
		modify(&cfg)
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.serveListener(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return srv, ln.Addr().String()
}

func dialClient(t *testing.T, addr string) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func signup(t *testing.T, addr, user string) *client.Client {
	t.Helper()
	c := dialClient(t, addr)
	if err := c.Signup(user, user+"-pw", "blue"); err != nil {
		t.Fatalf("signup %s: %v", user, err)
	}
	return c
}

func login(t *testing.T, addr, user string) *client.Client {
	t.Helper()
	c := dialClient(t, addr)
	if err := c.Login(user, user+"-pw"); err != nil {
		t.Fatalf("login %s: %v", user, err)
	}
	return c
}

// rawConn speaks the protocol without the client library, for checking
// exact frames.
type rawConn struct {
	t  *testing.T
	nc net.Conn
	r  *common.Reader
	w  *common.Writer
}

func dialRaw(t *testing.T, addr string) *rawConn {
	t.Helper()
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	nc.SetDeadline(time.Now().Add(10 * time.Second))
	t.Cleanup(func() { nc.Close() })
	return &rawConn{t: t, nc: nc, r: common.NewReader(nc, 0), w: common.NewWriter(nc)}
}

func (c *rawConn) send(lines ...string) {
	c.t.Helper()
	for _, line := range lines {
		if err := c.w.WriteLine(line); err != nil {
			c.t.Fatalf("send %q: %v", line, err)
		}
	}
}

func (c *rawConn) sendBytes(b []byte) {
	c.t.Helper()
	if err := c.w.WriteBytes(b); err != nil {
		c.t.Fatal(err)
	}
}

func (c *rawConn) line() string {
	c.t.Helper()
	line, err := c.r.ReadLine()
	if err != nil {
		c.t.Fatalf("read line: %v", err)
	}
	return line
}

func (c *rawConn) expect(want string) {
	c.t.Helper()
	if got := c.line(); got != want {
		c.t.Fatalf("want %q, got %q", want, got)
	}
}

func (c *rawConn) expectClosed() {
	c.t.Helper()
	if line, err := c.r.ReadLine(); err == nil {
		c.t.Fatalf("expected closed connection, got %q", line)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
