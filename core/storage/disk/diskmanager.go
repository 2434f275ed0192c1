// Package disk implements the raw block I/O and page id allocation that the
// buffer pool consumes: synchronous reads and writes at a page's byte
// offset, and monotonic page id issuance with a reusable free-id list.
package disk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/foliostore/foliodb/core/storage/page"
)

const (
	magic         uint32 = 0xF011ADB0
	fileVersion   uint32 = 1
	fileHeaderLen int64  = 32
)

// fileHeader occupies the first fileHeaderLen bytes of the database file,
// ahead of page 0. It is fixed-size and written with explicit field widths
// rather than a struct blob so its layout never depends on compiler padding.
type fileHeader struct {
	Magic    uint32
	Version  uint32
	PageSize uint32
	Reserved uint32
	NumPages uint64
}

// Manager is the concrete disk manager: one data file, fixed 4096-byte
// pages, and an in-memory free-id list fed by DeallocatePage. Reusing a
// freed id is not itself persisted; the id's page bytes are always
// rewritten before being read again, so no on-disk free-space map is
// needed to stay consistent.
type Manager struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	numPages uint64
	freeIDs  []page.ID
	closed   bool
	log      *zap.Logger
}

// Open opens an existing database file, or creates one if create is true
// and no file exists at path.
func Open(path string, create bool, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{path: path, log: log}

	_, statErr := os.Stat(path)
	switch {
	case os.IsNotExist(statErr):
		if !create {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
		if err != nil {
			return nil, fmt.Errorf("%w: creating %s: %v", ErrIO, path, err)
		}
		m.file = f
		if err := m.writeHeader(&fileHeader{Magic: magic, Version: fileVersion, PageSize: page.Size}); err != nil {
			f.Close()
			os.Remove(path)
			return nil, err
		}
		m.numPages = 0
	case statErr == nil:
		if create {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		f, err := os.OpenFile(path, os.O_RDWR, 0666)
		if err != nil {
			return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
		}
		m.file = f
		hdr, err := m.readHeader()
		if err != nil {
			f.Close()
			return nil, err
		}
		if hdr.Magic != magic {
			f.Close()
			return nil, ErrBadMagic
		}
		if hdr.PageSize != page.Size {
			f.Close()
			return nil, fmt.Errorf("%w: file has %d, manager has %d", ErrPageSizeMismatch, hdr.PageSize, page.Size)
		}
		m.numPages = hdr.NumPages
	default:
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, path, statErr)
	}

	log.Debug("disk manager opened", zap.String("path", path), zap.Uint64("num_pages", m.numPages))
	return m, nil
}

func (m *Manager) offsetOf(id page.ID) int64 {
	return fileHeaderLen + int64(id)*int64(page.Size)
}

// ReadPage synchronously reads one page's bytes into buf, which must be
// exactly page.Size long.
func (m *Manager) ReadPage(id page.ID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if len(buf) != page.Size {
		return fmt.Errorf("%w: read buffer is %d bytes, want %d", ErrIO, len(buf), page.Size)
	}
	n, err := m.file.ReadAt(buf, m.offsetOf(id))
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: reading page %d: %v", ErrIO, id, err)
	}
	if n != page.Size {
		return fmt.Errorf("%w: short read for page %d: got %d bytes", ErrIO, id, n)
	}
	return nil
}

// WritePage synchronously and durably writes buf, which must be exactly
// page.Size long, to id's slot.
func (m *Manager) WritePage(id page.ID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if len(buf) != page.Size {
		return fmt.Errorf("%w: write buffer is %d bytes, want %d", ErrIO, len(buf), page.Size)
	}
	if _, err := m.file.WriteAt(buf, m.offsetOf(id)); err != nil {
		return fmt.Errorf("%w: writing page %d: %v", ErrIO, id, err)
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing page %d: %v", ErrIO, id, err)
	}
	return nil
}

// AllocatePage returns a fresh page id: a recycled one from the free-id
// list if any exist, otherwise a new monotonically-increasing one that
// extends the file by one page.
func (m *Manager) AllocatePage() (page.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return page.InvalidID, ErrClosed
	}
	if n := len(m.freeIDs); n > 0 {
		id := m.freeIDs[n-1]
		m.freeIDs = m.freeIDs[:n-1]
		var zero [page.Size]byte
		if _, err := m.file.WriteAt(zero[:], m.offsetOf(id)); err != nil {
			return page.InvalidID, fmt.Errorf("%w: zeroing recycled page %d: %v", ErrIO, id, err)
		}
		return id, nil
	}
	id := page.ID(m.numPages)
	var zero [page.Size]byte
	if _, err := m.file.WriteAt(zero[:], m.offsetOf(id)); err != nil {
		return page.InvalidID, fmt.Errorf("%w: extending file for page %d: %v", ErrIO, id, err)
	}
	m.numPages++
	if err := m.persistNumPages(); err != nil {
		return page.InvalidID, err
	}
	return id, nil
}

// DeallocatePage marks id as reusable by a future AllocatePage call.
func (m *Manager) DeallocatePage(id page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.freeIDs = append(m.freeIDs, id)
	return nil
}

// Sync flushes buffered writes to stable storage.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrIO, err)
	}
	return nil
}

// Close syncs and closes the underlying file. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if err := m.file.Sync(); err != nil {
		m.log.Warn("sync on close failed", zap.Error(err))
	}
	return m.file.Close()
}

func (m *Manager) persistNumPages() error {
	hdr, err := m.readHeader()
	if err != nil {
		return err
	}
	hdr.NumPages = m.numPages
	return m.writeHeader(hdr)
}

func (m *Manager) writeHeader(h *fileHeader) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("%w: serializing file header: %v", ErrIO, err)
	}
	padded := make([]byte, fileHeaderLen)
	copy(padded, buf.Bytes())
	if _, err := m.file.WriteAt(padded, 0); err != nil {
		return fmt.Errorf("%w: writing file header: %v", ErrIO, err)
	}
	return nil
}

func (m *Manager) readHeader() (*fileHeader, error) {
	buf := make([]byte, fileHeaderLen)
	if _, err := m.file.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("%w: reading file header: %v", ErrIO, err)
	}
	var h fileHeader
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: deserializing file header: %v", ErrIO, err)
	}
	return &h, nil
}
