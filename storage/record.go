package storage

import "strings"

const (
	visibilityPublic  = "public"
	visibilityPrivate = "private"
)

// FileRecord is one row of a user's metadata index.
type FileRecord struct {
	Name        string
	Public      bool
	Requester   string // user whose request this upload fulfilled, may be empty
	Description string
}

// String renders the record as a metadata row:
// filename|public|requester|description.
func (r FileRecord) String() string {
	vis := visibilityPrivate
	if r.Public {
		vis = visibilityPublic
	}
	return r.Name + "|" + vis + "|" + r.Requester + "|" + r.Description
}

// ParseRecord parses a metadata row. Rows written by older servers may lack
// the trailing fields.
func ParseRecord(line string) (FileRecord, bool) {
	parts := strings.SplitN(line, "|", 4)
	if parts[0] == "" {
		return FileRecord{}, false
	}
	rec := FileRecord{Name: parts[0]}
	if len(parts) > 1 {
		rec.Public = parts[1] == visibilityPublic
	}
	if len(parts) > 2 {
		rec.Requester = parts[2]
	}
	if len(parts) > 3 {
		rec.Description = parts[3]
	}
	return rec, true
}

// CanDownload reports whether user may download the file described by r
// from owner.
func (r FileRecord) CanDownload(owner, user string) bool {
	return user == owner || r.Public || (r.Requester != "" && r.Requester == user)
}
