package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// apiService serves the read-only status API.
type apiService struct {
	srv    *Server
	listen string
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

type userStatus struct {
	Name    string `json:"name"`
	Online  bool   `json:"online"`
	Unread  int    `json:"unread"`
	Pending int    `json:"pendingRequests"`
	Active  bool   `json:"active"` // has logged in at least once
}

type bufferStatus struct {
	Reserved int64 `json:"reserved"`
	Max      int64 `json:"max"`
	Sessions int   `json:"sessions"`
}

func newAPIService(srv *Server, listen string) *apiService {
	return &apiService{srv: srv, listen: listen}
}

func (a *apiService) String() string {
	return "api@" + a.listen
}

func (a *apiService) handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", a.getHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/users", a.getUsers).Methods(http.MethodGet)
	r.HandleFunc("/api/buffer", a.getBuffer).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Use(debugMiddleware)
	return r
}

func (a *apiService) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.listen)
	if err != nil {
		return errors.Wrap(err, "api listen")
	}
	srv := http.Server{
		Handler:     a.handler(),
		ReadTimeout: 15 * time.Second,
		ErrorLog:    log.New(io.Discard, "", 0),
	}
	l.Infoln("Status API listening on", ln.Addr())

	serveError := make(chan error, 1)
	go func() {
		serveError <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		err = nil
	case err = <-serveError:
		l.Warnln("Status API:", err, "(restarting)")
	}

	timeout, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(timeout); err == timeout.Err() {
		srv.Close()
	}
	return err
}

func (a *apiService) getHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, healthResponse{Status: "ok", Connections: a.srv.conns.Size()})
}

func (a *apiService) getUsers(w http.ResponseWriter, _ *http.Request) {
	names := a.srv.known.Sorted()
	users := make([]userStatus, len(names))
	for i, name := range names {
		users[i] = userStatus{
			Name:    name,
			Online:  a.srv.presence.IsOnline(name),
			Unread:  a.srv.unread.Count(name),
			Pending: len(a.srv.requests.For(name)),
			Active:  a.srv.store.HasDir(name),
		}
	}
	sendJSON(w, users)
}

func (a *apiService) getBuffer(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, bufferStatus{
		Reserved: a.srv.buffer.Reserved(),
		Max:      a.srv.buffer.Max(),
		Sessions: a.srv.sessions.Len(),
	})
}

func sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lAPI.Debugln("Encoding response:", err)
	}
}

func debugMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t0 := time.Now()
		h.ServeHTTP(w, r)
		if lAPI.ShouldDebug("") {
			lAPI.Debugf("http: %s %s: %v", r.Method, r.URL.Path, time.Since(t0))
		}
	})
}
