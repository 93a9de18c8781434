package main

import (
	"strings"

	"fileshare/common"
	"fileshare/storage"

	"github.com/pkg/errors"
)

// dispatch handles one command line. The returned error is non-nil only
// when the connection can no longer be used.
func (c *connection) dispatch(line string) error {
	cmd, rest, _ := common.SplitCommand(line)
	switch cmd {
	case common.CmdListClients:
		return c.listClients()
	case common.CmdListOwnFiles:
		return c.listOwnFiles()
	case common.CmdListPublicFiles:
		return c.listPublicFiles(rest)
	case common.CmdUploadRequest:
		return c.uploadRequest(rest)
	case common.CmdUploadChunk:
		return c.uploadChunk(rest)
	case common.CmdUploadComplete:
		return c.uploadComplete(rest)
	case common.CmdDownloadRequest:
		return c.download(rest)
	case common.CmdFileRequest:
		return c.fileRequest(rest)
	case common.CmdViewMessages:
		return c.viewMessages()
	case common.CmdViewHistory:
		return c.viewHistory()
	case common.CmdDeleteFile:
		return c.deleteFile(rest)
	case common.CmdDeleteMessage:
		return c.deleteMessage(rest)
	case common.CmdLogout:
		c.running = false
		return c.reply(common.ReplySuccess + "Logged out")
	default:
		return c.replyError("Unknown command")
	}
}

func (c *connection) listClients() error {
	names := c.srv.known.Sorted()
	items := make([]string, len(names))
	for i, name := range names {
		if c.srv.presence.IsOnline(name) {
			items[i] = name + "(online)"
		} else {
			items[i] = name + "(offline)"
		}
	}
	return c.reply(common.JoinList(common.ReplyClientList, items, ","))
}

func (c *connection) listOwnFiles() error {
	rows, err := c.srv.store.MetadataRows(c.user)
	if err != nil {
		l.Warnf("Reading metadata of %s: %v", c.user, err)
	}
	return c.reply(common.JoinList(common.ReplyOwnFiles, rows, ";"))
}

// listPublicFiles lists the public files of another user as
// filename~description. Private files are omitted even when the caller
// would be allowed to download them.
func (c *connection) listPublicFiles(target string) error {
	if target == "" {
		return c.replyError("No username specified")
	}
	var items []string
	recs, err := c.srv.store.Records(target)
	if err != nil && !errors.Is(err, storage.ErrInvalidName) {
		l.Warnf("Reading metadata of %s: %v", target, err)
	}
	for _, rec := range recs {
		if rec.Public {
			items = append(items, rec.Name+"~"+rec.Description)
		}
	}
	return c.reply(common.JoinList(common.ReplyPublicFiles, items, ";"))
}

// viewMessages returns every persisted message and marks them read.
func (c *connection) viewMessages() error {
	msgs, err := c.srv.store.Messages(c.user)
	if err != nil {
		l.Warnf("Reading messages of %s: %v", c.user, err)
	}
	c.srv.unread.Clear(c.user)
	return c.reply(common.JoinList(common.ReplyMessages, msgs, ";"))
}

func (c *connection) viewHistory() error {
	rows, err := c.srv.store.History(c.user)
	if err != nil {
		l.Warnf("Reading action log of %s: %v", c.user, err)
	}
	return c.reply(common.JoinList(common.ReplyHistory, rows, ";"))
}

func (c *connection) deleteFile(name string) error {
	if strings.TrimSpace(name) == "" {
		return c.replyError("No filename specified")
	}
	err := c.srv.store.DeleteFile(c.user, name)
	switch {
	case errors.Is(err, storage.ErrFileNotFound):
		return c.replyError("File not found")
	case err != nil:
		l.Warnf("Deleting %s of %s: %v", name, c.user, err)
		c.srv.logAction(c.user, name, "delete", "failed")
		return c.replyError("Failed to delete file")
	}
	c.srv.logAction(c.user, name, "delete", "success")
	l.Infof("File deleted: %s by %s", name, c.user)
	return c.reply(common.ReplyDeleteSuccess + name)
}

func (c *connection) deleteMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return c.replyError("No message specified")
	}
	err := c.srv.store.DeleteMessage(c.user, text)
	switch {
	case errors.Is(err, storage.ErrNoMessages):
		return c.replyError("No messages file")
	case errors.Is(err, storage.ErrMessageNotFound):
		return c.replyError("Message not found")
	case err != nil:
		l.Warnf("Deleting message of %s: %v", c.user, err)
		return c.replyError("Failed to update messages")
	}
	return c.reply(common.ReplyMessageDeleted)
}
