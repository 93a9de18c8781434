package main

import (
	"fmt"

	"fileshare/common"
)

// fileRequest handles description|recipient, where recipient is a known
// user or ALL for everybody but the requester.
func (c *connection) fileRequest(rest string) error {
	args := common.SplitArgs(rest, 2)
	description, recipient := args[0], args[1]
	if recipient == "" {
		return c.replyError("No recipient specified")
	}

	var targets []string
	if recipient == common.BroadcastRecipient {
		for _, name := range c.srv.known.Sorted() {
			if name != c.user {
				targets = append(targets, name)
			}
		}
	} else {
		if !c.srv.known.Has(recipient) {
			return c.replyError("User not found")
		}
		targets = []string{recipient}
	}

	req := fileRequest{
		ID:          c.srv.requestIDs.Next(),
		Requester:   c.user,
		Description: description,
	}
	text := fmt.Sprintf("File request from %s (ID: %s): %s", c.user, req.ID, description)
	for _, target := range targets {
		c.srv.requests.Add(target, req)
		c.srv.deliver(target, text)
	}
	metricRequestsTotal.Inc()
	l.Infof("File request created: %s by %s for %s", req.ID, c.user, recipient)
	return c.reply(common.ReplyRequestSent + req.ID)
}

// notifyFulfilled tells the originator of requestID that filename has been
// uploaded by this connection's user.
func (c *connection) notifyFulfilled(requestID, filename, description string) {
	req, ok := c.srv.requests.Find(requestID)
	if !ok {
		return
	}
	text := fmt.Sprintf("%s uploaded requested file '%s' (Request ID: %s)", c.user, filename, requestID)
	if description != "" {
		text += " - Note: " + description
	}
	c.srv.deliver(req.Requester, text)
	l.Infof("Notified %s about uploaded file %s", req.Requester, filename)
}
