package storage

import (
	"bufio"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
)

// Credentials is the persistent mapping username -> (password, recovery
// answer). The file holds one row per user, username|password|answer, and
// is rewritten on every change. Secrets are stored as bcrypt hashes; rows
// holding plaintext values, as written by the legacy server, still verify.
type Credentials struct {
	path  string
	cost  int
	mut   sync.Mutex
	users map[string]credential
}

type credential struct {
	password string
	answer   string
}

// LoadCredentials reads the credential file at path. A missing file yields
// an empty store. cost is the bcrypt cost used for new secrets.
func LoadCredentials(path string, cost int) (*Credentials, error) {
	c := &Credentials{
		path:  path,
		cost:  cost,
		users: make(map[string]credential),
	}

	fd, err := os.Open(path)
	if os.IsNotExist(err) {
		l.Infoln("No saved credentials found.")
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open credentials")
	}
	defer fd.Close()

	sc := bufio.NewScanner(fd)
	for sc.Scan() {
		parts := strings.SplitN(sc.Text(), "|", 3)
		if len(parts) < 2 || parts[0] == "" {
			continue
		}
		cr := credential{password: parts[1]}
		if len(parts) == 3 {
			cr.answer = parts[2]
		}
		c.users[parts[0]] = cr
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read credentials")
	}

	l.Infof("Loaded %d saved credentials.", len(c.users))
	return c, nil
}

// Exists reports whether username is registered.
func (c *Credentials) Exists(username string) bool {
	c.mut.Lock()
	defer c.mut.Unlock()
	_, ok := c.users[username]
	return ok
}

// Usernames returns all registered users in sorted order.
func (c *Credentials) Usernames() []string {
	c.mut.Lock()
	names := make([]string, 0, len(c.users))
	for name := range c.users {
		names = append(names, name)
	}
	c.mut.Unlock()
	slices.Sort(names)
	return names
}

// Verify checks password for username.
func (c *Credentials) Verify(username, password string) error {
	c.mut.Lock()
	cr, ok := c.users[username]
	c.mut.Unlock()
	if !ok {
		return ErrUserNotFound
	}
	if !matchSecret(cr.password, password) {
		return ErrWrongPassword
	}
	return nil
}

// Register adds a new user and persists the store.
func (c *Credentials) Register(username, password, answer string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if normalizeAnswer(answer) == "" {
		return ErrEmptyAnswer
	}
	pw, err := hashSecret(password, c.cost)
	if err != nil {
		return err
	}
	ans, err := hashSecret(normalizeAnswer(answer), c.cost)
	if err != nil {
		return err
	}

	c.mut.Lock()
	defer c.mut.Unlock()
	if _, ok := c.users[username]; ok {
		return ErrUserExists
	}
	c.users[username] = credential{password: pw, answer: ans}
	if err := c.saveLocked(); err != nil {
		delete(c.users, username)
		return err
	}
	return nil
}

// Reset replaces the password of username if answer matches the stored
// recovery answer. Answers compare case-insensitively after trimming.
func (c *Credentials) Reset(username, answer, newPassword string) error {
	c.mut.Lock()
	cr, ok := c.users[username]
	c.mut.Unlock()
	if !ok {
		return ErrUserNotFound
	}
	if cr.answer == "" {
		return ErrNoRecoveryAnswer
	}
	if !matchAnswer(cr.answer, answer) {
		return ErrWrongRecoveryAnswer
	}
	if strings.TrimSpace(newPassword) == "" {
		return ErrEmptyPassword
	}
	pw, err := hashSecret(newPassword, c.cost)
	if err != nil {
		return err
	}

	c.mut.Lock()
	defer c.mut.Unlock()
	prev := c.users[username]
	c.users[username] = credential{password: pw, answer: prev.answer}
	if err := c.saveLocked(); err != nil {
		c.users[username] = prev
		return err
	}
	return nil
}

func (c *Credentials) saveLocked() error {
	names := make([]string, 0, len(c.users))
	for name := range c.users {
		names = append(names, name)
	}
	slices.Sort(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		cr := c.users[name]
		lines = append(lines, name+"|"+cr.password+"|"+cr.answer)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errors.Wrap(err, "create credentials directory")
	}
	return errors.Wrap(writeLinesAtomic(c.path, lines, 0o600), "save credentials")
}

// Casers carry state and cannot be shared between goroutines.
func normalizeAnswer(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Secrets are pre-hashed so that bcrypt's 72 byte input limit never
// truncates or rejects them.
func prehash(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return []byte(hex.EncodeToString(sum[:]))
}

func hashSecret(s string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword(prehash(s), cost)
	if err != nil {
		return "", errors.Wrap(err, "hash secret")
	}
	return string(h), nil
}

func isHashed(stored string) bool {
	return strings.HasPrefix(stored, "$2")
}

func matchSecret(stored, given string) bool {
	if isHashed(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), prehash(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}

func matchAnswer(stored, given string) bool {
	if isHashed(stored) {
		return matchSecret(stored, normalizeAnswer(given))
	}
	return normalizeAnswer(stored) == normalizeAnswer(given)
}
