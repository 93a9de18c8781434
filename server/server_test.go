package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"math"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"fileshare/client"
	"fileshare/common"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/crypto/bcrypt"
)

func TestPublicUploadCrossUserDownload(t *testing.T) {
	_, addr := newTestServer(t, nil)

	alice := signup(t, addr, "Alice")
	if err := alice.Upload("hello.txt", []byte("hi\n"), client.UploadOptions{Public: true}); err != nil {
		t.Fatal(err)
	}

	bob := dialRaw(t, addr)
	bob.send(common.AuthSignup, "Bob", "pw", "red")
	bob.expect("SUCCESS:Welcome Bob")
	bob.send("DOWNLOAD_REQUEST:Alice|hello.txt")
	bob.expect("DOWNLOAD_START:hello.txt|3")
	n, err := bob.r.ReadInt32BE()
	if err != nil || n != 3 {
		t.Fatalf("block length %d, %v", n, err)
	}
	data, err := bob.r.ReadExact(3)
	if err != nil || string(data) != "hi\n" {
		t.Fatalf("block %q, %v", data, err)
	}
	bob.expect("DOWNLOAD_COMPLETE")
}

func TestPrivateFileAndRequestedAccess(t *testing.T) {
	_, addr := newTestServer(t, nil)

	alice := signup(t, addr, "Alice")
	bob := signup(t, addr, "Bob")

	if err := alice.Upload("secret.bin", []byte{1, 2, 3}, client.UploadOptions{}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := bob.Download("Alice", "secret.bin", &buf); !client.IsServerError(err, "File is private") {
		t.Fatalf("private download: got %v", err)
	}

	id, err := bob.FileRequest("please", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if id != "REQ_1" {
		t.Fatalf("request id %q", id)
	}
	note, err := alice.NextNotification(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if want := "File request from Bob (ID: REQ_1): please"; note != want {
		t.Fatalf("notification %q", note)
	}

	if err := alice.Upload("secret.bin", []byte{4, 5, 6, 7}, client.UploadOptions{RequestID: id}); err != nil {
		t.Fatal(err)
	}
	note, err = bob.NextNotification(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if want := "Alice uploaded requested file 'secret.bin' (Request ID: REQ_1)"; note != want {
		t.Fatalf("fulfilment notification %q", note)
	}

	buf.Reset()
	if _, err := bob.Download("Alice", "secret.bin", &buf); err != nil {
		t.Fatalf("requested download: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{4, 5, 6, 7}) {
		t.Fatalf("content %v", buf.Bytes())
	}

	// Still private for everybody else.
	carol := signup(t, addr, "Carol")
	if _, err := carol.Download("Alice", "secret.bin", &buf); !client.IsServerError(err, "File is private") {
		t.Fatalf("third party download: got %v", err)
	}

	files, err := carol.ListPublicFiles("Alice")
	if err != nil || len(files) != 0 {
		t.Fatalf("public listing %v, %v", files, err)
	}
}

func TestBufferCap(t *testing.T) {
	srv, addr := newTestServer(t, nil)
	const size = 6 << 20

	alice := signup(t, addr, "alice")
	bob := signup(t, addr, "bob")

	id, chunkSize, err := alice.RequestUpload("big.bin", size, client.UploadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if chunkSize < 50<<10 || chunkSize > 100<<10 {
		t.Fatalf("chunk size %d out of range", chunkSize)
	}
	if _, _, err := bob.RequestUpload("big.bin", size, client.UploadOptions{}); !client.IsServerError(err, "Buffer full") {
		t.Fatalf("second reservation: got %v", err)
	}
	if got := srv.buffer.Reserved(); got != size {
		t.Fatalf("reserved %d", got)
	}

	content := make([]byte, size)
	rand.Read(content)
	for off := 0; off < size; off += chunkSize {
		end := min(off+chunkSize, size)
		if err := alice.SendChunk(id, content[off:end]); err != nil {
			t.Fatal(err)
		}
	}
	if err := alice.CompleteUpload(id); err != nil {
		t.Fatal(err)
	}
	if got := srv.buffer.Reserved(); got != 0 {
		t.Fatalf("reserved after completion %d", got)
	}

	if err := bob.Upload("big.bin", content, client.UploadOptions{}); err != nil {
		t.Fatalf("fresh reservation: %v", err)
	}

	history, err := bob.History()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history %q", history)
	}
	if !strings.HasSuffix(history[0], "|upload|failed - buffer full") ||
		!strings.HasSuffix(history[1], "|upload|success") {
		t.Fatalf("history %q", history)
	}
}

func TestDuplicateLogin(t *testing.T) {
	srv, addr := newTestServer(t, nil)
	signup(t, addr, "Carol")

	second := dialRaw(t, addr)
	second.send(common.AuthLogin, "Carol", "Carol-pw")
	second.expect("ERROR:Username already online")
	second.expectClosed()

	if srv.presence.Len() != 1 {
		t.Fatalf("presence has %d entries", srv.presence.Len())
	}
}

func TestSizeMismatch(t *testing.T) {
	srv, addr := newTestServer(t, nil)
	before := testutil.ToFloat64(metricUploadsTotal.WithLabelValues("size_mismatch"))

	alice := signup(t, addr, "alice")
	id, _, err := alice.RequestUpload("ten.bin", 10, client.UploadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := alice.SendChunk(id, []byte("1234567")); err != nil {
		t.Fatal(err)
	}
	if err := alice.CompleteUpload(id); !client.IsServerError(err, "File size mismatch") {
		t.Fatalf("complete: got %v", err)
	}
	if got := srv.buffer.Reserved(); got != 0 {
		t.Fatalf("reserved %d", got)
	}
	if _, err := os.Stat(filepath.Join(srv.cfg.DataDir, "alice", "ten.bin")); !os.IsNotExist(err) {
		t.Fatalf("content written: %v", err)
	}
	recs, err := alice.ListOwnFiles()
	if err != nil || len(recs) != 0 {
		t.Fatalf("own files %v, %v", recs, err)
	}
	if after := testutil.ToFloat64(metricUploadsTotal.WithLabelValues("size_mismatch")); after != before+1 {
		t.Fatalf("size mismatch counter %v -> %v", before, after)
	}
}

func TestBroadcastRequestNotification(t *testing.T) {
	_, addr := newTestServer(t, nil)
	a := signup(t, addr, "A")
	b := signup(t, addr, "B")
	c := signup(t, addr, "C")

	id, err := a.FileRequest("anything", common.BroadcastRecipient)
	if err != nil {
		t.Fatal(err)
	}
	if id != "REQ_1" {
		t.Fatalf("request id %q", id)
	}

	want := "File request from A (ID: REQ_1): anything"
	for _, peer := range []*client.Client{b, c} {
		note, err := peer.NextNotification(5 * time.Second)
		if err != nil {
			t.Fatalf("%s: %v", peer.User(), err)
		}
		if note != want {
			t.Fatalf("%s: notification %q", peer.User(), note)
		}
		msgs, err := peer.Messages()
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(msgs, []string{want}) {
			t.Fatalf("%s: messages %q", peer.User(), msgs)
		}
	}

	msgs, err := a.Messages()
	if err != nil || len(msgs) != 0 {
		t.Fatalf("requester messages %q, %v", msgs, err)
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	_, addr := newTestServer(t, func(cfg *Config) {
		cfg.MinChunkSize = 1000
		cfg.MaxChunkSize = 4000
	})
	alice := signup(t, addr, "alice")
	bob := signup(t, addr, "bob")

	dir := t.TempDir()
	src := filepath.Join(dir, "data.bin")
	content := make([]byte, 100_003)
	rand.Read(content)
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := alice.UploadFile(src, client.UploadOptions{Public: true, Description: "random bytes"}); err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	dst, err := bob.DownloadFile("alice", "data.bin", out)
	if err != nil {
		t.Fatal(err)
	}
	h1, err := client.HashFile(src)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := client.HashFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("hash mismatch %s != %s", h1, h2)
	}

	files, err := bob.ListPublicFiles("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != (client.PublicFile{Name: "data.bin", Description: "random bytes"}) {
		t.Fatalf("public files %+v", files)
	}
}

func TestZeroByteUpload(t *testing.T) {
	_, addr := newTestServer(t, nil)
	alice := signup(t, addr, "alice")
	if err := alice.Upload("empty", nil, client.UploadOptions{Public: true}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	n, err := alice.Download("alice", "empty", &buf)
	if err != nil || n != 0 {
		t.Fatalf("download %d, %v", n, err)
	}
}

func TestDisconnectDropsUpload(t *testing.T) {
	srv, addr := newTestServer(t, nil)
	alice := signup(t, addr, "alice")

	id, _, err := alice.RequestUpload("partial.bin", 1000, client.UploadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := alice.SendChunk(id, make([]byte, 10)); err != nil {
		t.Fatal(err)
	}
	alice.Close()

	waitFor(t, "buffer release", func() bool {
		return srv.buffer.Reserved() == 0 && srv.sessions.Len() == 0
	})
	waitFor(t, "presence removal", func() bool {
		return !srv.presence.IsOnline("alice")
	})
	if _, err := os.Stat(filepath.Join(srv.cfg.DataDir, "alice", "partial.bin")); !os.IsNotExist(err) {
		t.Fatalf("partial file written: %v", err)
	}

	// The user can log in again once the old connection is gone.
	login(t, addr, "alice")
}

func TestFulfilmentReachesOfflineRequester(t *testing.T) {
	srv, addr := newTestServer(t, nil)
	alice := signup(t, addr, "alice")
	bob := signup(t, addr, "bob")

	id, err := bob.FileRequest("the report", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := bob.Logout(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "bob offline", func() bool { return !srv.presence.IsOnline("bob") })

	if err := alice.Upload("report.pdf", []byte("%PDF"), client.UploadOptions{RequestID: id, Description: "v1"}); err != nil {
		t.Fatal(err)
	}

	bob = login(t, addr, "bob")
	msgs, err := bob.Messages()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"alice uploaded requested file 'report.pdf' (Request ID: REQ_1) - Note: v1"}
	if !slices.Equal(msgs, want) {
		t.Fatalf("messages %q", msgs)
	}

	recs, err := alice.ListOwnFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Requester != "bob" || recs[0].Public || recs[0].Description != "v1" {
		t.Fatalf("own files %+v", recs)
	}
}

func TestOversizedUploadRequest(t *testing.T) {
	srv, addr := newTestServer(t, nil)
	alice := signup(t, addr, "alice")

	if _, _, err := alice.RequestUpload("a.bin", 1, client.UploadOptions{}); err != nil {
		t.Fatal(err)
	}
	for _, size := range []int64{math.MaxInt64, 10<<20 + 1} {
		if _, _, err := alice.RequestUpload("b.bin", size, client.UploadOptions{}); !client.IsServerError(err, "Buffer full") {
			t.Fatalf("size %d: got %v", size, err)
		}
	}
	if _, _, err := alice.RequestUpload("c.bin", 9_000_000, client.UploadOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := alice.RequestUpload("d.bin", 9_000_000, client.UploadOptions{}); !client.IsServerError(err, "Buffer full") {
		t.Fatalf("second 9MB request: got %v", err)
	}
	if got := srv.buffer.Reserved(); got != 9_000_001 {
		t.Fatalf("reserved %d", got)
	}
}

// A connection that has not sent anything yet must still be closed on
// shutdown.
func TestShutdownClosesIdleConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- srv.serveListener(ctx, ln)
	}()

	raw := dialRaw(t, ln.Addr().String())
	waitFor(t, "registration", func() bool { return srv.conns.Size() == 1 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not finish")
	}
	raw.expectClosed()
}

func TestShutdownClosesConnections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.PasswordCost = bcrypt.MinCost
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- srv.serveListener(ctx, ln)
	}()

	raw := dialRaw(t, ln.Addr().String())
	raw.send(common.AuthSignup, "alice", "pw", "blue")
	raw.expect("SUCCESS:Welcome alice")

	cancel()
	raw.expectClosed()
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
	if srv.presence.Len() != 0 || srv.conns.Size() != 0 {
		t.Fatalf("presence %d, connections %d after shutdown", srv.presence.Len(), srv.conns.Size())
	}
}
