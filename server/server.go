package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fileshare/common"
	"fileshare/storage"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/time/rate"
)

const credentialsFile = "credentials.txt"

// Server holds the registries shared by all connections.
type Server struct {
	cfg   Config
	creds *storage.Credentials
	store *storage.UserStore

	buffer     *bufferAccountant
	sessions   *sessionTable
	requests   *requestRegistry
	unread     *unreadRegistry
	presence   *presenceRegistry
	known      *userSet
	conns      *xsync.MapOf[string, *connection]
	fileIDs    *idGenerator
	requestIDs *idGenerator

	sendLimiter *rate.Limiter
	recvLimiter *rate.Limiter
	now         func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create data directory")
	}
	creds, err := storage.LoadCredentials(filepath.Join(cfg.DataDir, credentialsFile), cfg.PasswordCost)
	if err != nil {
		return nil, err
	}

	buffer := newBufferAccountant(cfg.MaxBufferSize)
	return &Server{
		cfg:         cfg,
		creds:       creds,
		store:       storage.NewUserStore(cfg.DataDir),
		buffer:      buffer,
		sessions:    newSessionTable(buffer),
		requests:    newRequestRegistry(),
		unread:      newUnreadRegistry(),
		presence:    newPresenceRegistry(),
		known:       newUserSet(creds.Usernames()...),
		conns:       xsync.NewMapOf[string, *connection](),
		fileIDs:     newIDGenerator("FILE_"),
		requestIDs:  newIDGenerator("REQ_"),
		sendLimiter: common.NewLimiter(cfg.MaxSendKiBps),
		recvLimiter: common.NewLimiter(cfg.MaxRecvKiBps),
		now:         time.Now,
	}, nil
}

func (s *Server) String() string {
	return "fileshare@" + s.cfg.Listen
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	l.Infof("Server started on %s", ln.Addr())
	l.Infof("Max buffer size: %s", humanize.IBytes(uint64(s.cfg.MaxBufferSize)))
	l.Infof("Chunk size range: %s - %s", humanize.IBytes(uint64(s.cfg.MinChunkSize)), humanize.IBytes(uint64(s.cfg.MaxChunkSize)))
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer func() {
		s.conns.Range(func(_ string, c *connection) bool {
			c.close()
			return true
		})
		wg.Wait()
	}()

	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() { //nolint:staticcheck
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else {
					delay *= 2
				}
				if delay > time.Second {
					delay = time.Second
				}
				l.Warnf("Accept error: %v; retrying in %v", err, delay)
				time.Sleep(delay)
				continue
			}
			return errors.Wrap(err, "accept")
		}
		delay = 0

		metricConnectionsTotal.Inc()
		c := newConnection(s, nc)
		s.conns.Store(c.id, c)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(c)
		}()
	}
}

// handleConn runs c, which the accept loop has already registered so that
// shutdown always sees it.
func (s *Server) handleConn(c *connection) {
	defer s.conns.Delete(c.id)

	lConn.Debugf("Connection %s from %s", c.id, c.nc.RemoteAddr())
	c.run()
	lConn.Debugf("Connection %s closed", c.id)
}

// deliver persists text as a message to user and pushes it if the user is
// online. Persistence failures are logged only.
func (s *Server) deliver(user, text string) {
	if err := s.store.AppendMessage(user, text); err != nil {
		l.Warnf("Saving message for %s: %v", user, err)
	}
	s.unread.Add(user, text)
	if c, ok := s.presence.Get(user); ok {
		if c.push(common.ReplyNewMessage + text) {
			metricPushesTotal.WithLabelValues("sent").Inc()
		} else {
			metricPushesTotal.WithLabelValues("dropped").Inc()
			lConn.Debugf("Dropped push to %s", user)
		}
	}
}

// logAction writes a row to the action log of user; failures are logged
// only.
func (s *Server) logAction(user, filename, action, status string) {
	if err := s.store.AppendLog(user, filename, action, status, s.now()); err != nil {
		l.Warnf("Writing action log of %s: %v", user, err)
	}
}
