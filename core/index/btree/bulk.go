package btree

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// InsertFromFile bulk-loads integer keys, one per line, using RID{PageID:
// key, SlotNum: 0} as a placeholder value — a convenience for seeding a
// tree from a plain text fixture rather than a driver for real record
// identifiers.
func (t *Tree) InsertFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("btree: opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return fmt.Errorf("btree: parsing key %q: %w", line, err)
		}
		t.Insert(Key(n), RID{PageID: int32(n), SlotNum: 0})
	}
	return scanner.Err()
}

// RemoveFromFile bulk-deletes integer keys, one per line.
func (t *Tree) RemoveFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("btree: opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return fmt.Errorf("btree: parsing key %q: %w", line, err)
		}
		t.Remove(Key(n))
	}
	return scanner.Err()
}
