package main

import (
	"io"
	"net"
	"sync"

	"fileshare/common"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var errConnClosed = errors.New("connection closed")

// outJob is a unit of output. Jobs run one at a time on the connection's
// writer goroutine, so a job owns the socket for its whole duration.
type outJob struct {
	fn   func(w *common.Writer) error
	done chan error // nil for pushes
}

// connection is one client socket. The handler goroutine is the only
// reader; all writes go through the out queue and are performed by the
// writer goroutine.
type connection struct {
	id  string
	srv *Server
	nc  net.Conn
	r   *common.Reader
	w   *common.Writer

	out       chan outJob
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	user    string
	running bool
	uploads map[string]struct{} // ids of sessions owned by this connection
}

func newConnection(srv *Server, nc net.Conn) *connection {
	r := common.NewReader(nc, srv.cfg.MaxLineLength)
	r.SetLimiter(srv.recvLimiter)
	w := common.NewWriter(nc)
	w.SetLimiter(srv.sendLimiter)
	return &connection{
		id:      uuid.NewString(),
		srv:     srv,
		nc:      nc,
		r:       r,
		w:       w,
		out:     make(chan outJob, srv.cfg.PushQueueSize),
		quit:    make(chan struct{}),
		uploads: make(map[string]struct{}),
	}
}

func (c *connection) String() string {
	if c.user == "" {
		return c.id
	}
	return c.user + "/" + c.id
}

func (c *connection) run() {
	c.wg.Add(1)
	go c.writerLoop()
	defer func() {
		c.cleanup()
		c.close()
		c.wg.Wait()
	}()

	if !c.authenticate() {
		return
	}
	c.serve()
}

func (c *connection) writerLoop() {
	defer c.wg.Done()
	for {
		select {
		case job := <-c.out:
			err := job.fn(c.w)
			if job.done != nil {
				job.done <- err
			}
			if err != nil {
				if job.done == nil {
					lConn.Debugf("Push to %s failed: %v", c, err)
				}
				c.close()
				return
			}
		case <-c.quit:
			return
		}
	}
}

// do queues fn and waits for it to finish.
func (c *connection) do(fn func(w *common.Writer) error) error {
	done := make(chan error, 1)
	select {
	case c.out <- outJob{fn: fn, done: done}:
	case <-c.quit:
		return errConnClosed
	}
	select {
	case err := <-done:
		return err
	case <-c.quit:
		return errConnClosed
	}
}

func (c *connection) reply(line string) error {
	return c.do(func(w *common.Writer) error {
		return w.WriteLine(line)
	})
}

func (c *connection) replyError(msg string) error {
	return c.reply(common.ErrorLine(msg))
}

// push queues a server initiated line without waiting. It reports false if
// the connection is gone or its queue is full.
func (c *connection) push(line string) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.out <- outJob{fn: func(w *common.Writer) error { return w.WriteLine(line) }}:
		return true
	default:
		return false
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.nc.Close()
	})
}

// serve runs the command loop until LOGOUT, an empty line, EOF or a
// protocol failure.
func (c *connection) serve() {
	c.running = true
	for c.running {
		line, err := c.r.ReadLine()
		if err != nil {
			if err != io.EOF {
				lConn.Debugf("Reading from %s: %v", c, err)
			}
			return
		}
		if line == "" {
			return
		}

		lConn.Debugf("Command from %s: %s", c, line)
		if err := c.dispatch(line); err != nil {
			if !errors.Is(err, errConnClosed) {
				lConn.Infof("Closing %s: %v", c, err)
			}
			return
		}
	}
}

// cleanup runs on every exit path: incomplete uploads are dropped and the
// user leaves the presence registry.
func (c *connection) cleanup() {
	for id := range c.uploads {
		lUp.Debugf("Dropping incomplete upload %s of %s", id, c)
		c.srv.sessions.Remove(id)
	}
	clear(c.uploads)
	if c.user != "" {
		c.srv.presence.Leave(c.user, c)
		l.Infof("User %s disconnected", c.user)
	}
}
