package common

import "strings"

// Authentication modes, sent as the first line of a connection.
const (
	AuthLogin   = "LOGIN"
	AuthSignup  = "SIGNUP"
	AuthRecover = "RECOVER"
)

// Client commands.
const (
	CmdListClients     = "LIST_CLIENTS"
	CmdListOwnFiles    = "LIST_OWN_FILES"
	CmdListPublicFiles = "LIST_PUBLIC_FILES"
	CmdUploadRequest   = "UPLOAD_REQUEST"
	CmdUploadChunk     = "UPLOAD_CHUNK"
	CmdUploadComplete  = "UPLOAD_COMPLETE"
	CmdDownloadRequest = "DOWNLOAD_REQUEST"
	CmdFileRequest     = "FILE_REQUEST"
	CmdViewMessages    = "VIEW_MESSAGES"
	CmdViewHistory     = "VIEW_HISTORY"
	CmdDeleteFile      = "DELETE_FILE"
	CmdDeleteMessage   = "DELETE_MESSAGE"
	CmdLogout          = "LOGOUT"
)

// Reply prefixes. Those ending in a colon carry a payload.
const (
	ReplySuccess          = "SUCCESS:"
	ReplyError            = "ERROR:"
	ReplyClientList       = "CLIENT_LIST:"
	ReplyOwnFiles         = "OWN_FILES:"
	ReplyPublicFiles      = "PUBLIC_FILES:"
	ReplyUploadApproved   = "UPLOAD_APPROVED:"
	ReplyChunkAck         = "CHUNK_ACK"
	ReplyUploadSuccess    = "UPLOAD_SUCCESS"
	ReplyDownloadStart    = "DOWNLOAD_START:"
	ReplyDownloadComplete = "DOWNLOAD_COMPLETE"
	ReplyRequestSent      = "REQUEST_SENT:"
	ReplyMessages         = "MESSAGES:"
	ReplyHistory          = "HISTORY:"
	ReplyDeleteSuccess    = "DELETE_SUCCESS:"
	ReplyMessageDeleted   = "MESSAGE_DELETED"
	ReplyNewMessage       = "NEW_MESSAGE:"
)

// BroadcastRecipient addresses a file request to every known user.
const BroadcastRecipient = "ALL"

// SplitCommand splits a line into the command and the rest after the first
// colon. hasArg reports whether a colon was present.
func SplitCommand(line string) (cmd, rest string, hasArg bool) {
	cmd, rest, hasArg = strings.Cut(line, ":")
	return cmd, rest, hasArg
}

// SplitArgs splits the argument part of a command on '|' into at most n
// fields. Missing trailing fields are returned as empty strings so that the
// result always has length n.
func SplitArgs(rest string, n int) []string {
	parts := strings.SplitN(rest, "|", n)
	for len(parts) < n {
		parts = append(parts, "")
	}
	return parts
}

// JoinList concatenates items, terminating each with sep. This is the
// listing format of the legacy clients, which split on sep and skip the
// empty tail.
func JoinList(prefix string, items []string, sep string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, it := range items {
		b.WriteString(it)
		b.WriteString(sep)
	}
	return b.String()
}

// ErrorLine formats an error reply.
func ErrorLine(msg string) string {
	return ReplyError + msg
}
