package storage

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// Uploads are staged under this prefix in the owner directory before being
// renamed into place. Such names are never valid file names.
const tempPrefix = ".upload-"

// LogTimeFormat is the timestamp layout of action log rows.
const LogTimeFormat = "2006-01-02 15:04:05"

// UserStore manages the per-user directories below a root directory. Every
// directory holds the uploaded content files plus the metadata index, the
// message log and the action log. Access to the bookkeeping files of one
// user is serialized; different users proceed in parallel.
type UserStore struct {
	root  string
	locks *xsync.MapOf[string, *sync.Mutex]
}

func NewUserStore(root string) *UserStore {
	return &UserStore{
		root:  root,
		locks: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

func (s *UserStore) Root() string {
	return s.root
}

func (s *UserStore) lock(user string) func() {
	mut, _ := s.locks.LoadOrCompute(user, func() *sync.Mutex {
		return new(sync.Mutex)
	})
	mut.Lock()
	return mut.Unlock
}

func (s *UserStore) dir(user string) (string, error) {
	if !ValidUsername(user) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.root, user), nil
}

// EnsureDir creates the directory of user if it does not exist yet.
func (s *UserStore) EnsureDir(user string) error {
	dir, err := s.dir(user)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", user)
	}
	return nil
}

// HasDir reports whether user has a directory, i.e. has ever logged in.
func (s *UserStore) HasDir(user string) bool {
	dir, err := s.dir(user)
	if err != nil {
		return false
	}
	fi, err := os.Stat(dir)
	return err == nil && fi.IsDir()
}

// SaveFile writes the concatenated chunks as the content of rec.Name in the
// directory of user and records rec in the metadata index, replacing any
// previous row for the same name. The content only becomes visible once it
// is complete. If the index cannot be updated the content is removed again.
func (s *UserStore) SaveFile(user string, rec FileRecord, chunks [][]byte) error {
	dir, err := s.dir(user)
	if err != nil {
		return err
	}
	if !ValidFilename(rec.Name) {
		return ErrInvalidName
	}
	if err := s.EnsureDir(user); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	var size int64
	for _, chunk := range chunks {
		n, err := tmp.Write(chunk)
		size += int64(n)
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return errors.Wrap(err, "write content")
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "close content")
	}

	unlock := s.lock(user)
	defer unlock()

	dst := filepath.Join(dir, rec.Name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "rename content")
	}

	rows, err := readLines(filepath.Join(dir, MetadataFile))
	if err != nil && !os.IsNotExist(errors.Cause(err)) {
		os.Remove(dst)
		return err
	}
	kept := rows[:0]
	for _, row := range rows {
		if r, ok := ParseRecord(row); ok && r.Name == rec.Name {
			continue
		}
		kept = append(kept, row)
	}
	kept = append(kept, rec.String())
	if err := writeLinesAtomic(filepath.Join(dir, MetadataFile), kept, 0o644); err != nil {
		os.Remove(dst)
		return errors.Wrap(err, "save metadata")
	}

	l.Debugf("Saved %s/%s (%s)", user, rec.Name, humanize.IBytes(uint64(size)))
	return nil
}

// OpenFile opens the content of name in the directory of owner for reading
// and returns its size. Invalid and reserved names report ErrFileNotFound.
func (s *UserStore) OpenFile(owner, name string) (*os.File, int64, error) {
	dir, err := s.dir(owner)
	if err != nil || !ValidFilename(name) {
		return nil, 0, ErrFileNotFound
	}
	fd, err := os.Open(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return nil, 0, ErrFileNotFound
	}
	if err != nil {
		return nil, 0, errors.Wrap(err, "open file")
	}
	fi, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, 0, errors.Wrap(err, "stat file")
	}
	if !fi.Mode().IsRegular() {
		fd.Close()
		return nil, 0, ErrFileNotFound
	}
	return fd, fi.Size(), nil
}

// DeleteFile removes the content of name and its metadata row.
func (s *UserStore) DeleteFile(user, name string) error {
	dir, err := s.dir(user)
	if err != nil || !ValidFilename(name) {
		return ErrFileNotFound
	}

	unlock := s.lock(user)
	defer unlock()

	path := filepath.Join(dir, name)
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return ErrFileNotFound
	}
	if err := os.Remove(path); err != nil {
		return errors.Wrap(err, "remove file")
	}

	rows, err := readLines(filepath.Join(dir, MetadataFile))
	if os.IsNotExist(errors.Cause(err)) {
		return nil
	}
	if err != nil {
		l.Warnf("Reading metadata of %s: %v", user, err)
		return nil
	}
	kept := rows[:0]
	for _, row := range rows {
		if r, ok := ParseRecord(row); ok && r.Name == name {
			continue
		}
		kept = append(kept, row)
	}
	if err := writeLinesAtomic(filepath.Join(dir, MetadataFile), kept, 0o644); err != nil {
		l.Warnf("Updating metadata of %s: %v", user, err)
	}
	return nil
}

// MetadataRows returns the metadata index of user as stored.
func (s *UserStore) MetadataRows(user string) ([]string, error) {
	return s.readFile(user, MetadataFile)
}

// Records returns the parsed metadata index of user.
func (s *UserStore) Records(user string) ([]FileRecord, error) {
	rows, err := s.MetadataRows(user)
	if err != nil {
		return nil, err
	}
	recs := make([]FileRecord, 0, len(rows))
	for _, row := range rows {
		if rec, ok := ParseRecord(row); ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// Record looks up the metadata row for name.
func (s *UserStore) Record(user, name string) (FileRecord, bool, error) {
	recs, err := s.Records(user)
	if err != nil {
		return FileRecord{}, false, err
	}
	for _, rec := range recs {
		if rec.Name == name {
			return rec, true, nil
		}
	}
	return FileRecord{}, false, nil
}

// AppendMessage adds text to the persistent messages of user.
func (s *UserStore) AppendMessage(user, text string) error {
	return s.appendLine(user, MessagesFile, text)
}

// Messages returns the persistent messages of user, oldest first.
func (s *UserStore) Messages(user string) ([]string, error) {
	return s.readFile(user, MessagesFile)
}

// DeleteMessage removes the first persistent message whose trimmed text
// equals the trimmed text argument.
func (s *UserStore) DeleteMessage(user, text string) error {
	dir, err := s.dir(user)
	if err != nil {
		return err
	}

	unlock := s.lock(user)
	defer unlock()

	path := filepath.Join(dir, MessagesFile)
	rows, err := readLines(path)
	if os.IsNotExist(errors.Cause(err)) {
		return ErrNoMessages
	}
	if err != nil {
		return err
	}

	want := strings.TrimSpace(text)
	found := false
	kept := rows[:0]
	for _, row := range rows {
		if !found && strings.TrimSpace(row) == want {
			found = true
			continue
		}
		kept = append(kept, row)
	}
	if !found {
		return ErrMessageNotFound
	}
	return errors.Wrap(writeLinesAtomic(path, kept, 0o644), "save messages")
}

// AppendLog records an action on filename in the action log of user.
func (s *UserStore) AppendLog(user, filename, action, status string, at time.Time) error {
	row := filename + "|" + at.Format(LogTimeFormat) + "|" + action + "|" + status
	return s.appendLine(user, LogFile, row)
}

// History returns the action log of user, oldest first.
func (s *UserStore) History(user string) ([]string, error) {
	return s.readFile(user, LogFile)
}

// readFile returns the non-blank lines of a bookkeeping file. A missing
// file is empty.
func (s *UserStore) readFile(user, name string) ([]string, error) {
	dir, err := s.dir(user)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(user)
	defer unlock()

	rows, err := readLines(filepath.Join(dir, name))
	if os.IsNotExist(errors.Cause(err)) {
		return nil, nil
	}
	return rows, err
}

func (s *UserStore) appendLine(user, name, line string) error {
	dir, err := s.dir(user)
	if err != nil {
		return err
	}
	if err := s.EnsureDir(user); err != nil {
		return err
	}

	unlock := s.lock(user)
	defer unlock()

	fd, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", name)
	}
	if _, err := fd.WriteString(line + "\n"); err != nil {
		fd.Close()
		return errors.Wrapf(err, "append to %s", name)
	}
	return errors.Wrapf(fd.Close(), "close %s", name)
}

func readLines(path string) ([]string, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer fd.Close()

	var lines []string
	sc := bufio.NewScanner(fd)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		lines = append(lines, sc.Text())
	}
	return lines, errors.Wrap(sc.Err(), "read")
}

// writeLinesAtomic replaces path with lines via a temporary file in the
// same directory.
func writeLinesAtomic(path string, lines []string, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
