// Package mailbox implements a per-identity durable FIFO: append-only
// record files under a stable, hashed per-identity directory, with
// at-least-once drain semantics.
package mailbox

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/dimchat/station/internal/id"
)

// ErrIO wraps any filesystem failure as a MailboxIOError condition.
type ErrIO struct{ err error }

func (e *ErrIO) Error() string { return fmt.Sprintf("mailbox: io error: %v", e.err) }
func (e *ErrIO) Unwrap() error { return e.err }

// Store is an append-only per-identity message log rooted at dir
// (state_root/mailbox). One mutex per identity directory serializes
// append with drain.
type Store struct {
	root string

	mu    sync.Mutex // guards the locks map itself
	locks map[string]*sync.Mutex
}

// NewStore returns a Store rooted at dir. dir is created if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &ErrIO{err}
	}
	return &Store{root: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// pathHash returns the stable blake2b-256 hex digest used as the
// on-disk directory name for ident.
func pathHash(ident id.ID) string {
	sum := blake2b.Sum256([]byte(ident.String()))
	return hex.EncodeToString(sum[:])
}

func (s *Store) lockFor(hash string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[hash]
	if !ok {
		l = &sync.Mutex{}
		s.locks[hash] = l
	}
	return l
}

func (s *Store) dirFor(ident id.ID) (string, string) {
	hash := pathHash(ident)
	return filepath.Join(s.root, hash), hash
}

// ensureMeta writes the hash→ID sibling meta file the first time a
// mailbox directory is created.
func ensureMeta(dir string, ident id.ID) error {
	metaPath := filepath.Join(dir, "meta")
	if _, err := os.Stat(metaPath); err == nil {
		return nil
	}
	return os.WriteFile(metaPath, []byte(ident.String()+"\n"), 0o644)
}

func queuePath(dir string) string { return filepath.Join(dir, "queue.log") }

// Append durably appends bytes to ident's mailbox. Returns once the
// write is fsynced. Records are length-prefixed (u32 big-endian) ||
// bytes.
func (s *Store) Append(ident id.ID, msg []byte) error {
	dir, hash := s.dirFor(ident)
	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &ErrIO{err}
	}
	if err := ensureMeta(dir, ident); err != nil {
		return &ErrIO{err}
	}

	f, err := os.OpenFile(queuePath(dir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &ErrIO{err}
	}
	defer f.Close()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(msg)))
	if _, err := f.Write(header[:]); err != nil {
		return &ErrIO{err}
	}
	if _, err := f.Write(msg); err != nil {
		return &ErrIO{err}
	}
	if err := f.Sync(); err != nil {
		return &ErrIO{err}
	}
	return nil
}

// Drain reads all complete records currently in ident's mailbox file and
// returns them along with the byte offset marking their end. Records
// are deleted only after the caller acknowledges successful push, via
// Ack with that offset; if the caller crashes before Ack, the next
// Drain re-reads the same records (at-least-once). Appends racing with
// an in-flight Drain land after the returned offset and survive the
// subsequent Ack.
func (s *Store) Drain(ident id.ID) (records [][]byte, offset int64, err error) {
	dir, hash := s.dirFor(ident)
	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	f, openErr := os.Open(queuePath(dir))
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return nil, 0, nil
		}
		return nil, 0, &ErrIO{openErr}
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var pos int64
	for {
		var header [4]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			break // EOF or truncated trailing header: stop cleanly.
		}
		n := binary.BigEndian.Uint32(header[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			// Truncated trailing record (e.g. a crash mid-append);
			// stop here and return what parsed cleanly.
			break
		}
		records = append(records, buf)
		pos += int64(4 + len(buf))
	}
	return records, pos, nil
}

// Ack removes the first upTo bytes of ident's mailbox file — exactly
// the records the caller just pushed successfully — by rewriting the
// remaining tail into a fresh file and renaming it into place. Anything
// appended after upTo (a racing Append) is preserved: a successful full
// drain truncates the mailbox, never discarding what arrived since.
func (s *Store) Ack(ident id.ID, upTo int64) error {
	if upTo <= 0 {
		return nil
	}
	dir, hash := s.dirFor(ident)
	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	path := queuePath(dir)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &ErrIO{err}
	}
	if _, err := f.Seek(upTo, io.SeekStart); err != nil {
		f.Close()
		return &ErrIO{err}
	}

	tmpPath := path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		f.Close()
		return &ErrIO{err}
	}
	if _, err := io.Copy(tmp, f); err != nil {
		f.Close()
		tmp.Close()
		return &ErrIO{err}
	}
	f.Close()
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &ErrIO{err}
	}
	tmp.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return &ErrIO{err}
	}
	return nil
}
