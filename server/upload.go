package main

import (
	"fmt"
	"strconv"
	"strings"

	"fileshare/common"
	"fileshare/storage"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

var errBadChunkSize = errors.New("unframeable chunk announcement")

// uploadRequest handles name|size|isPublic|requestId|description.
func (c *connection) uploadRequest(rest string) error {
	args := common.SplitArgs(rest, 5)
	name, sizeArg, publicArg, requestID, description := args[0], args[1], args[2], args[3], args[4]

	if name == "" {
		return c.replyError("No filename specified")
	}
	if !storage.ValidFilename(name) {
		return c.replyError("Invalid filename")
	}
	size, err := strconv.ParseInt(strings.TrimSpace(sizeArg), 10, 64)
	if err != nil || size < 0 {
		return c.replyError("Invalid file size")
	}

	var requester string
	if requestID != "" {
		req, ok := c.srv.requests.Find(requestID)
		if !ok {
			return c.replyError("Invalid request ID")
		}
		requester = req.Requester
	}

	if size > c.srv.buffer.Max() || !c.srv.buffer.Reserve(size) {
		lUp.Infof("Upload of %s by %s denied, buffer full (%s requested)", name, c.user, humanize.IBytes(uint64(size)))
		metricUploadsTotal.WithLabelValues("buffer_full").Inc()
		c.srv.logAction(c.user, name, "upload", "failed - buffer full")
		return c.replyError("Buffer full")
	}

	sess := &uploadSession{
		ID:          c.srv.fileIDs.Next(),
		Owner:       c.user,
		Filename:    name,
		Total:       size,
		ChunkSize:   randomChunkSize(c.srv.cfg.MinChunkSize, c.srv.cfg.MaxChunkSize),
		Public:      strings.EqualFold(publicArg, "true"),
		RequestID:   requestID,
		Requester:   requester,
		Description: description,
	}
	c.srv.sessions.Add(sess)
	c.uploads[sess.ID] = struct{}{}

	lUp.Debugf("Upload %s approved: %s (%s) by %s, chunk size %d", sess.ID, name, humanize.IBytes(uint64(size)), c.user, sess.ChunkSize)
	return c.reply(fmt.Sprintf("%s%s|%d", common.ReplyUploadApproved, sess.ID, sess.ChunkSize))
}

// uploadChunk handles fileId|N followed by N raw bytes. The bytes are always
// consumed when N is acceptable, so the next text line is found at the
// right offset even when the chunk itself is rejected.
func (c *connection) uploadChunk(rest string) error {
	args := common.SplitArgs(rest, 2)
	id := args[0]
	n, err := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
	if err != nil || n < 0 || n > c.srv.cfg.MaxBufferSize {
		c.replyError("Invalid chunk size")
		return errors.Wrapf(errBadChunkSize, "chunk size %q", args[1])
	}
	if n == 0 {
		return c.replyError("Invalid chunk size")
	}

	sess, ok := c.srv.sessions.Get(id, c.user)
	if !ok {
		if err := c.r.Discard(n); err != nil {
			return errors.Wrap(err, "discard chunk")
		}
		return c.replyError("Invalid file ID")
	}
	if n > sess.Remaining() {
		if err := c.r.Discard(n); err != nil {
			return errors.Wrap(err, "discard chunk")
		}
		lUp.Debugf("Chunk of %d bytes exceeds declared size of %s", n, id)
		return c.replyError("Chunk exceeds declared size")
	}

	data, err := c.r.ReadExact(int(n))
	if err != nil {
		return errors.Wrap(err, "read chunk")
	}
	sess.add(data)
	metricUploadBytesTotal.Add(float64(n))
	return c.reply(common.ReplyChunkAck)
}

func (c *connection) uploadComplete(id string) error {
	sess, ok := c.srv.sessions.Get(id, c.user)
	if !ok {
		return c.replyError("Invalid file ID")
	}
	delete(c.uploads, id)

	if sess.Received() != sess.Total {
		lUp.Infof("Upload %s of %s: size mismatch (%d of %d bytes)", id, sess.Filename, sess.Received(), sess.Total)
		c.srv.sessions.Remove(id)
		metricUploadsTotal.WithLabelValues("size_mismatch").Inc()
		c.srv.logAction(c.user, sess.Filename, "upload", "failed - size mismatch")
		return c.replyError("File size mismatch")
	}

	rec := storage.FileRecord{
		Name:        sess.Filename,
		Public:      sess.Public,
		Requester:   sess.Requester,
		Description: sess.Description,
	}
	err := c.srv.store.SaveFile(c.user, rec, sess.chunks)
	c.srv.sessions.Remove(id)
	if err != nil {
		l.Warnf("Saving %s of %s: %v", sess.Filename, c.user, err)
		metricUploadsTotal.WithLabelValues("save_error").Inc()
		c.srv.logAction(c.user, sess.Filename, "upload", "failed - save error")
		return c.replyError("Failed to save file")
	}

	metricUploadsTotal.WithLabelValues("success").Inc()
	c.srv.logAction(c.user, sess.Filename, "upload", "success")
	lUp.Infof("Upload completed: %s by %s (%s)", sess.Filename, c.user, humanize.IBytes(uint64(sess.Total)))
	if err := c.reply(common.ReplyUploadSuccess); err != nil {
		return err
	}

	if sess.RequestID != "" {
		c.notifyFulfilled(sess.RequestID, sess.Filename, sess.Description)
	}
	return nil
}
