package client

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fileshare/common"

	"github.com/pkg/errors"
)

// UploadOptions are the optional fields of an upload request.
type UploadOptions struct {
	Public      bool
	RequestID   string // request this upload fulfils
	Description string
}

// RequestUpload announces an upload and returns the file id and the chunk
// size the server asks for.
func (c *Client) RequestUpload(name string, size int64, opts UploadOptions) (string, int, error) {
	line := fmt.Sprintf("%s:%s|%d|%t|%s|%s", common.CmdUploadRequest, name, size, opts.Public, opts.RequestID, opts.Description)
	payload, err := c.command(line, common.ReplyUploadApproved)
	if err != nil {
		return "", 0, err
	}
	id, sizeArg, ok := strings.Cut(payload, "|")
	chunkSize, err := strconv.Atoi(sizeArg)
	if !ok || err != nil || chunkSize <= 0 {
		return "", 0, errors.Wrapf(ErrUnexpectedReply, "upload approval %q", payload)
	}
	return id, chunkSize, nil
}

// SendChunk sends one chunk of an approved upload.
func (c *Client) SendChunk(fileID string, data []byte) error {
	if err := c.Send(fmt.Sprintf("%s:%s|%d", common.CmdUploadChunk, fileID, len(data))); err != nil {
		return err
	}
	if err := c.w.WriteBytes(data); err != nil {
		return errors.Wrap(err, "send chunk")
	}
	_, err := c.expect(common.ReplyChunkAck)
	return err
}

func (c *Client) CompleteUpload(fileID string) error {
	_, err := c.command(common.CmdUploadComplete+":"+fileID, common.ReplyUploadSuccess)
	return err
}

// Upload stores data on the server as name.
func (c *Client) Upload(name string, data []byte, opts UploadOptions) error {
	return c.upload(name, bytes.NewReader(data), int64(len(data)), opts)
}

// UploadFile stores the local file at path under its base name.
func (c *Client) UploadFile(path string, opts UploadOptions) error {
	fd, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fd.Close()
	fi, err := fd.Stat()
	if err != nil {
		return err
	}
	return c.upload(filepath.Base(path), fd, fi.Size(), opts)
}

func (c *Client) upload(name string, src io.Reader, size int64, opts UploadOptions) error {
	id, chunkSize, err := c.RequestUpload(name, size, opts)
	if err != nil {
		return err
	}
	buf := make([]byte, chunkSize)
	for sent := int64(0); sent < size; {
		n, err := io.ReadFull(src, buf[:min(int64(chunkSize), size-sent)])
		if err != nil {
			return errors.Wrap(err, "read source")
		}
		if err := c.SendChunk(id, buf[:n]); err != nil {
			return err
		}
		sent += int64(n)
	}
	return c.CompleteUpload(id)
}

// Download writes the content of owner's file name to dst and returns the
// number of bytes received.
func (c *Client) Download(owner, name string, dst io.Writer) (int64, error) {
	payload, err := c.command(common.CmdDownloadRequest+":"+owner+"|"+name, common.ReplyDownloadStart)
	if err != nil {
		return 0, err
	}
	i := strings.LastIndexByte(payload, '|')
	if i < 0 {
		return 0, errors.Wrapf(ErrUnexpectedReply, "download start %q", payload)
	}
	size, err := strconv.ParseInt(payload[i+1:], 10, 64)
	if err != nil || size < 0 {
		return 0, errors.Wrapf(ErrUnexpectedReply, "download start %q", payload)
	}

	var got int64
	for got < size {
		n, err := c.r.ReadInt32BE()
		if err != nil {
			return got, errors.Wrap(err, "read block length")
		}
		if n <= 0 || int64(n) > size-got {
			return got, errors.Wrapf(ErrUnexpectedReply, "block of %d bytes with %d remaining", n, size-got)
		}
		data, err := c.r.ReadExact(int(n))
		if err != nil {
			return got, errors.Wrap(err, "read block")
		}
		if _, err := dst.Write(data); err != nil {
			return got, err
		}
		got += int64(n)
	}

	if _, err := c.expect(common.ReplyDownloadComplete); err != nil {
		return got, err
	}
	return got, nil
}

// DownloadFile downloads owner's file name into dir.
func (c *Client) DownloadFile(owner, name, dir string) (string, error) {
	path := filepath.Join(dir, filepath.Base(name))
	fd, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := c.Download(owner, name, fd); err != nil {
		fd.Close()
		os.Remove(path)
		return "", err
	}
	return path, fd.Close()
}
