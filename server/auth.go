package main

import (
	"strings"

	"fileshare/common"
	"fileshare/storage"

	"github.com/pkg/errors"
)

// authenticate runs the handshake: mode, username and password lines, plus
// a recovery answer for SIGNUP or a new password for RECOVER. On failure a
// single error line is sent and false is returned.
func (c *connection) authenticate() bool {
	mode, err := c.r.ReadLine()
	if err != nil {
		return false
	}
	username, err := c.r.ReadLine()
	if err != nil {
		return false
	}
	password, err := c.r.ReadLine()
	if err != nil {
		return false
	}

	mode = strings.TrimSpace(mode)
	switch mode {
	case common.AuthSignup, common.AuthRecover:
	default:
		mode = common.AuthLogin
	}

	if !storage.ValidUsername(username) {
		return c.authFailed(mode, "Invalid username")
	}

	if mode == common.AuthRecover {
		c.recover(username, password)
		return false
	}

	if strings.TrimSpace(password) == "" {
		return c.authFailed(mode, "Invalid password")
	}

	if mode == common.AuthSignup {
		if c.srv.creds.Exists(username) {
			return c.authFailed(mode, "Username already registered. Please login instead.")
		}
		answer, err := c.r.ReadLine()
		if err != nil {
			return false
		}
		err = c.srv.creds.Register(username, password, answer)
		switch {
		case errors.Is(err, storage.ErrUserExists):
			return c.authFailed(mode, "Username already registered. Please login instead.")
		case errors.Is(err, storage.ErrEmptyAnswer):
			return c.authFailed(mode, "Security answer is required for signup")
		case errors.Is(err, storage.ErrEmptyPassword):
			return c.authFailed(mode, "Invalid password")
		case err != nil:
			l.Warnf("Registering %s: %v", username, err)
			return c.authFailed(mode, "Registration failed")
		}
		l.Infof("New user registered: %s", username)
	} else {
		err := c.srv.creds.Verify(username, password)
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			return c.authFailed(mode, "Account not found. Please sign up first.")
		case err != nil:
			return c.authFailed(mode, "Wrong password")
		}
	}

	if err := c.srv.store.EnsureDir(username); err != nil {
		l.Warnf("Creating directory for %s: %v", username, err)
		return c.authFailed(mode, "Server storage error")
	}
	if !c.srv.presence.Enter(username, c) {
		l.Infof("Login denied for %s (already online)", username)
		return c.authFailed(mode, "Username already online")
	}
	c.user = username
	c.srv.known.Add(username)

	if err := c.reply(common.ReplySuccess + "Welcome " + username); err != nil {
		return false
	}
	metricAuthTotal.WithLabelValues(mode, "success").Inc()
	l.Infof("User %s logged in from %s", username, c.nc.RemoteAddr())
	return true
}

func (c *connection) recover(username, answer string) {
	newPassword, err := c.r.ReadLine()
	if err != nil {
		return
	}
	err = c.srv.creds.Reset(username, answer, newPassword)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		c.authFailed(common.AuthRecover, "Account not found")
	case errors.Is(err, storage.ErrNoRecoveryAnswer):
		c.authFailed(common.AuthRecover, "No security question set for this account")
	case errors.Is(err, storage.ErrWrongRecoveryAnswer):
		c.authFailed(common.AuthRecover, "Incorrect security answer")
	case errors.Is(err, storage.ErrEmptyPassword):
		c.authFailed(common.AuthRecover, "New password cannot be empty")
	case err != nil:
		l.Warnf("Resetting password of %s: %v", username, err)
		c.authFailed(common.AuthRecover, "Password reset failed")
	default:
		metricAuthTotal.WithLabelValues(common.AuthRecover, "success").Inc()
		l.Infof("Password reset for user: %s", username)
		// The legacy client shows this line as information.
		c.replyError("Password reset successful! Please login with your new password.")
	}
}

func (c *connection) authFailed(mode, msg string) bool {
	metricAuthTotal.WithLabelValues(mode, "failure").Inc()
	lConn.Debugf("Authentication of %s failed: %s", c.id, msg)
	c.replyError(msg)
	return false
}
