// Package client drives the file sharing protocol from the user side.
package client

import (
	"context"
	"net"
	"strings"
	"time"

	"fileshare/common"
	"fileshare/storage"

	"github.com/pkg/errors"
)

var ErrUnexpectedReply = errors.New("unexpected reply")

// ServerError is an ERROR: reply.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string {
	return "server: " + e.Msg
}

// IsServerError reports whether err is a ServerError with message msg.
func IsServerError(err error, msg string) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Msg == msg
}

// Client is a connection to the server. It is not safe for concurrent use.
type Client struct {
	conn  net.Conn
	r     *common.Reader
	w     *common.Writer
	user  string
	notes []string // NEW_MESSAGE texts seen while waiting for replies
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	return newClient(conn), nil
}

func newClient(conn net.Conn) *Client {
	return &Client{
		conn: conn,
		r:    common.NewReader(conn, 0),
		w:    common.NewWriter(conn),
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) User() string {
	return c.user
}

// Login authenticates an existing account.
func (c *Client) Login(user, password string) error {
	return c.auth(user, common.AuthLogin, user, password)
}

// Signup creates an account and logs it in.
func (c *Client) Signup(user, password, answer string) error {
	return c.auth(user, common.AuthSignup, user, password, answer)
}

// Recover resets the password of user. The server closes the connection
// afterwards in every case.
func (c *Client) Recover(user, answer, newPassword string) error {
	if err := c.sendLines(common.AuthRecover, user, answer, newPassword); err != nil {
		return err
	}
	line, err := c.Reply()
	if err != nil {
		return err
	}
	msg, ok := strings.CutPrefix(line, common.ReplyError)
	if !ok {
		return errors.Wrap(ErrUnexpectedReply, line)
	}
	if strings.HasPrefix(msg, "Password reset successful") {
		return nil
	}
	return &ServerError{Msg: msg}
}

func (c *Client) auth(user string, lines ...string) error {
	if err := c.sendLines(lines...); err != nil {
		return err
	}
	if _, err := c.expect(common.ReplySuccess); err != nil {
		return err
	}
	c.user = user
	return nil
}

func (c *Client) sendLines(lines ...string) error {
	for _, line := range lines {
		if err := c.w.WriteLine(line); err != nil {
			return errors.Wrap(err, "send")
		}
	}
	return nil
}

// Send writes one command line.
func (c *Client) Send(line string) error {
	return errors.Wrap(c.w.WriteLine(line), "send")
}

// Reply reads the next reply line. Pushed NEW_MESSAGE lines are queued for
// NextNotification and skipped.
func (c *Client) Reply() (string, error) {
	for {
		line, err := c.r.ReadLine()
		if err != nil {
			return "", errors.Wrap(err, "read reply")
		}
		if text, ok := strings.CutPrefix(line, common.ReplyNewMessage); ok {
			c.notes = append(c.notes, text)
			continue
		}
		return line, nil
	}
}

// expect reads a reply and returns its payload after prefix. ERROR:
// replies are returned as *ServerError.
func (c *Client) expect(prefix string) (string, error) {
	line, err := c.Reply()
	if err != nil {
		return "", err
	}
	if rest, ok := strings.CutPrefix(line, prefix); ok {
		return rest, nil
	}
	if msg, ok := strings.CutPrefix(line, common.ReplyError); ok {
		return "", &ServerError{Msg: msg}
	}
	return "", errors.Wrapf(ErrUnexpectedReply, "want %s, got %q", prefix, line)
}

func (c *Client) command(line, prefix string) (string, error) {
	if err := c.Send(line); err != nil {
		return "", err
	}
	return c.expect(prefix)
}

// NextNotification returns the next pushed message, waiting at most
// timeout for one to arrive. A line that is cut by the timeout is lost.
func (c *Client) NextNotification(timeout time.Duration) (string, error) {
	if len(c.notes) > 0 {
		text := c.notes[0]
		c.notes = c.notes[1:]
		return text, nil
	}
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.conn.SetReadDeadline(time.Time{})
	line, err := c.r.ReadLine()
	if err != nil {
		return "", errors.Wrap(err, "wait for notification")
	}
	text, ok := strings.CutPrefix(line, common.ReplyNewMessage)
	if !ok {
		return "", errors.Wrapf(ErrUnexpectedReply, "want notification, got %q", line)
	}
	return text, nil
}

// Notifications drains the queued pushed messages.
func (c *Client) Notifications() []string {
	notes := c.notes
	c.notes = nil
	return notes
}

// UserEntry is one element of the client list.
type UserEntry struct {
	Name   string
	Online bool
}

func (c *Client) ListClients() ([]UserEntry, error) {
	payload, err := c.command(common.CmdListClients, common.ReplyClientList)
	if err != nil {
		return nil, err
	}
	var users []UserEntry
	for _, item := range splitList(payload, ",") {
		if name, ok := strings.CutSuffix(item, "(online)"); ok {
			users = append(users, UserEntry{Name: name, Online: true})
		} else {
			users = append(users, UserEntry{Name: strings.TrimSuffix(item, "(offline)")})
		}
	}
	return users, nil
}

func (c *Client) ListOwnFiles() ([]storage.FileRecord, error) {
	payload, err := c.command(common.CmdListOwnFiles, common.ReplyOwnFiles)
	if err != nil {
		return nil, err
	}
	var recs []storage.FileRecord
	for _, row := range splitList(payload, ";") {
		if rec, ok := storage.ParseRecord(row); ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// PublicFile is one element of another user's public listing.
type PublicFile struct {
	Name        string
	Description string
}

func (c *Client) ListPublicFiles(user string) ([]PublicFile, error) {
	payload, err := c.command(common.CmdListPublicFiles+":"+user, common.ReplyPublicFiles)
	if err != nil {
		return nil, err
	}
	var files []PublicFile
	for _, item := range splitList(payload, ";") {
		name, desc, _ := strings.Cut(item, "~")
		files = append(files, PublicFile{Name: name, Description: desc})
	}
	return files, nil
}

// FileRequest asks recipient, or everybody with common.BroadcastRecipient,
// for a file. It returns the request id.
func (c *Client) FileRequest(description, recipient string) (string, error) {
	return c.command(common.CmdFileRequest+":"+description+"|"+recipient, common.ReplyRequestSent)
}

func (c *Client) Messages() ([]string, error) {
	payload, err := c.command(common.CmdViewMessages, common.ReplyMessages)
	if err != nil {
		return nil, err
	}
	return splitList(payload, ";"), nil
}

func (c *Client) History() ([]string, error) {
	payload, err := c.command(common.CmdViewHistory, common.ReplyHistory)
	if err != nil {
		return nil, err
	}
	return splitList(payload, ";"), nil
}

func (c *Client) DeleteFile(name string) error {
	_, err := c.command(common.CmdDeleteFile+":"+name, common.ReplyDeleteSuccess)
	return err
}

func (c *Client) DeleteMessage(text string) error {
	_, err := c.command(common.CmdDeleteMessage+":"+text, common.ReplyMessageDeleted)
	return err
}

func (c *Client) Logout() error {
	_, err := c.command(common.CmdLogout, common.ReplySuccess)
	return err
}

func splitList(payload, sep string) []string {
	var items []string
	for _, item := range strings.Split(payload, sep) {
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
