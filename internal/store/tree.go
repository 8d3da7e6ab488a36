package store

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/vk/rulegraph/internal/digest"
)

// Entry is one name in a directory tree. A directory entry's Digest names
// another tree record; a file entry's Digest names a blob.
type Entry struct {
	Name       string        `json:"name"`
	Digest     digest.Digest `json:"digest"`
	IsDir      bool          `json:"dir,omitempty"`
	Executable bool          `json:"x,omitempty"`
}

// WriteTree stores a directory listing and returns its Digest. Entries are
// canonicalized (sorted by name) before hashing, so listing order never
// affects identity. Duplicate names are rejected.
func (s *Store) WriteTree(entries []Entry) (digest.Digest, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return digest.Digest{}, fmt.Errorf("store: duplicate tree entry %q", sorted[i].Name)
		}
	}
	for _, e := range sorted {
		if e.Name == "" || strings.ContainsRune(e.Name, '/') {
			return digest.Digest{}, fmt.Errorf("store: invalid tree entry name %q", e.Name)
		}
	}

	encoded, err := json.Marshal(sorted)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("store: encoding tree: %w", err)
	}
	d := digest.FromBytes(encoded)
	if err := s.setIfAbsent(treeKey(d), encoded); err != nil {
		return digest.Digest{}, fmt.Errorf("store: writing tree: %w", err)
	}
	return d, nil
}

// EmptyTree returns the digest of the empty directory, writing it on first
// use.
func (s *Store) EmptyTree() (digest.Digest, error) {
	return s.WriteTree(nil)
}

// ReadTree returns the listing identified by d, or a NotFoundError.
func (s *Store) ReadTree(d digest.Digest) ([]Entry, error) {
	var encoded []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(treeKey(d))
		if err == badger.ErrKeyNotFound {
			return &NotFoundError{Digest: d}
		}
		if err != nil {
			return err
		}
		encoded, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(encoded, &entries); err != nil {
		return nil, fmt.Errorf("store: decoding tree %s: %w", d.Short(), err)
	}
	return entries, nil
}

// Merge unions directory trees into one. Two inputs defining the same path
// with identical content collapse to one entry; differing content at the
// same path is a ConflictError.
func (s *Store) Merge(digests ...digest.Digest) (digest.Digest, error) {
	switch len(digests) {
	case 0:
		return s.EmptyTree()
	case 1:
		// Verified like the multi-input path, so an unknown digest fails
		// with NotFoundError instead of passing through.
		if _, err := s.ReadTree(digests[0]); err != nil {
			return digest.Digest{}, err
		}
		return digests[0], nil
	}
	merged := digests[0]
	for _, d := range digests[1:] {
		var err error
		merged, err = s.mergePair(merged, d, "")
		if err != nil {
			return digest.Digest{}, err
		}
	}
	return merged, nil
}

func (s *Store) mergePair(a, b digest.Digest, at string) (digest.Digest, error) {
	if a == b {
		return a, nil
	}
	aEntries, err := s.ReadTree(a)
	if err != nil {
		return digest.Digest{}, err
	}
	bEntries, err := s.ReadTree(b)
	if err != nil {
		return digest.Digest{}, err
	}

	byName := make(map[string]Entry, len(aEntries))
	for _, e := range aEntries {
		byName[e.Name] = e
	}
	var out []Entry
	for _, be := range bEntries {
		ae, ok := byName[be.Name]
		if !ok {
			out = append(out, be)
			continue
		}
		delete(byName, be.Name)
		full := path.Join(at, be.Name)
		if ae.Digest == be.Digest && ae.IsDir == be.IsDir {
			out = append(out, ae)
			continue
		}
		if !ae.IsDir || !be.IsDir {
			return digest.Digest{}, &ConflictError{Path: full, A: ae.Digest, B: be.Digest}
		}
		sub, err := s.mergePair(ae.Digest, be.Digest, full)
		if err != nil {
			return digest.Digest{}, err
		}
		out = append(out, Entry{Name: ae.Name, Digest: sub, IsDir: true})
	}
	for _, ae := range byName {
		out = append(out, ae)
	}
	return s.WriteTree(out)
}

// AddPrefix returns a tree containing d nested under the given
// slash-separated prefix. It is a pure path rewrite; no content moves.
func (s *Store) AddPrefix(d digest.Digest, prefix string) (digest.Digest, error) {
	parts, err := splitPrefix(prefix)
	if err != nil {
		return digest.Digest{}, err
	}
	out := d
	for i := len(parts) - 1; i >= 0; i-- {
		out, err = s.WriteTree([]Entry{{Name: parts[i], Digest: out, IsDir: true}})
		if err != nil {
			return digest.Digest{}, err
		}
	}
	return out, nil
}

// RemovePrefix returns the subtree of d rooted at the given prefix, failing
// with a PathNotFoundError when the prefix does not name a directory in d.
func (s *Store) RemovePrefix(d digest.Digest, prefix string) (digest.Digest, error) {
	parts, err := splitPrefix(prefix)
	if err != nil {
		return digest.Digest{}, err
	}
	cur := d
	walked := ""
	for _, part := range parts {
		walked = path.Join(walked, part)
		entries, err := s.ReadTree(cur)
		if err != nil {
			return digest.Digest{}, err
		}
		found := false
		for _, e := range entries {
			if e.Name == part && e.IsDir {
				cur = e.Digest
				found = true
				break
			}
		}
		if !found {
			return digest.Digest{}, &PathNotFoundError{Path: walked}
		}
	}
	return cur, nil
}

// FileListing is a flattened view of a tree: path to blob digest.
type FileListing struct {
	Path       string
	Digest     digest.Digest
	Executable bool
}

// ListFiles walks the tree at d and returns every file with its full path,
// sorted.
func (s *Store) ListFiles(d digest.Digest) ([]FileListing, error) {
	var out []FileListing
	var walk func(dir digest.Digest, at string) error
	walk = func(dir digest.Digest, at string) error {
		entries, err := s.ReadTree(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			full := path.Join(at, e.Name)
			if e.IsDir {
				if err := walk(e.Digest, full); err != nil {
					return err
				}
				continue
			}
			out = append(out, FileListing{Path: full, Digest: e.Digest, Executable: e.Executable})
		}
		return nil
	}
	if err := walk(d, ""); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// TreeOf builds a nested tree from a flat listing of already-written
// blobs. Paths are slash-separated and tree-relative.
func (s *Store) TreeOf(files []FileListing) (digest.Digest, error) {
	type dir struct {
		files map[string]Entry
		dirs  map[string]*dir
	}
	newDir := func() *dir {
		return &dir{files: make(map[string]Entry), dirs: make(map[string]*dir)}
	}
	root := newDir()
	for _, f := range files {
		cleaned := strings.Trim(path.Clean("/"+f.Path), "/")
		if cleaned == "" {
			return digest.Digest{}, fmt.Errorf("store: empty file path in listing")
		}
		parts := strings.Split(cleaned, "/")
		cur := root
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur.dirs[part]
			if !ok {
				next = newDir()
				cur.dirs[part] = next
			}
			cur = next
		}
		name := parts[len(parts)-1]
		cur.files[name] = Entry{Name: name, Digest: f.Digest, Executable: f.Executable}
	}

	var write func(d *dir) (digest.Digest, error)
	write = func(d *dir) (digest.Digest, error) {
		entries := make([]Entry, 0, len(d.files)+len(d.dirs))
		for _, e := range d.files {
			entries = append(entries, e)
		}
		for name, sub := range d.dirs {
			subDigest, err := write(sub)
			if err != nil {
				return digest.Digest{}, err
			}
			entries = append(entries, Entry{Name: name, Digest: subDigest, IsDir: true})
		}
		return s.WriteTree(entries)
	}
	return write(root)
}

func splitPrefix(prefix string) ([]string, error) {
	cleaned := strings.Trim(path.Clean("/"+prefix), "/")
	if cleaned == "" {
		return nil, fmt.Errorf("store: empty path prefix")
	}
	parts := strings.Split(cleaned, "/")
	for _, p := range parts {
		if p == ".." {
			return nil, fmt.Errorf("store: prefix %q escapes the tree root", prefix)
		}
	}
	return parts, nil
}
