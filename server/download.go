package main

import (
	"fmt"
	"io"

	"fileshare/common"
	"fileshare/storage"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

var errDownloadAborted = errors.New("download aborted")

// download handles owner|filename. The start line, the length prefixed
// blocks and the completion line are written as one job so that no pushed
// notification lands inside the binary stream.
func (c *connection) download(rest string) error {
	args := common.SplitArgs(rest, 2)
	owner, name := args[0], args[1]
	if owner == "" || name == "" {
		return c.replyError("Invalid command format")
	}

	fd, size, err := c.srv.store.OpenFile(owner, name)
	if err != nil {
		if !errors.Is(err, storage.ErrFileNotFound) {
			l.Warnf("Opening %s/%s: %v", owner, name, err)
		}
		metricDownloadsTotal.WithLabelValues("not_found").Inc()
		c.srv.logAction(c.user, name, "download", "failed - not found")
		return c.replyError("File not found")
	}
	defer fd.Close()

	rec, _, err := c.srv.store.Record(owner, name)
	if err != nil {
		l.Warnf("Reading metadata of %s: %v", owner, err)
	}
	if !rec.CanDownload(owner, c.user) {
		metricDownloadsTotal.WithLabelValues("private").Inc()
		c.srv.logAction(c.user, name, "download", "failed - private")
		return c.replyError("File is private")
	}

	lDown.Debugf("Sending %s/%s (%s) to %s", owner, name, humanize.IBytes(uint64(size)), c.user)
	err = c.do(func(w *common.Writer) error {
		if err := w.WriteLine(fmt.Sprintf("%s%s|%d", common.ReplyDownloadStart, name, size)); err != nil {
			return err
		}
		buf := make([]byte, c.srv.cfg.MaxChunkSize)
		src := io.LimitReader(fd, size)
		var sent int64
		var failed error
		for {
			n, err := src.Read(buf)
			if n > 0 {
				if err := w.WriteBlock(buf[:n]); err != nil {
					return err
				}
				sent += int64(n)
				metricDownloadBytesTotal.Add(float64(n))
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				failed = err
				break
			}
		}
		if failed == nil && sent != size {
			failed = errors.Errorf("file shrank to %d of %d bytes", sent, size)
		}
		if failed != nil {
			w.WriteLine(common.ErrorLine("Download failed"))
			return errors.Wrap(errDownloadAborted, failed.Error())
		}
		return w.WriteLine(common.ReplyDownloadComplete)
	})
	if errors.Is(err, errDownloadAborted) {
		l.Warnf("Download of %s/%s by %s failed: %v", owner, name, c.user, err)
		metricDownloadsTotal.WithLabelValues("transfer_error").Inc()
		c.srv.logAction(c.user, name, "download", "failed - transfer error")
		return err
	}
	if err != nil {
		return err
	}

	metricDownloadsTotal.WithLabelValues("success").Inc()
	c.srv.logAction(c.user, name, "download", "success")
	lDown.Infof("%s downloaded %s/%s", c.user, owner, name)
	return nil
}
