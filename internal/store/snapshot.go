package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vk/rulegraph/internal/digest"
)

// Snapshot pairs a captured tree digest with the relative paths of every
// file it contains, letting callers record each file as a tracked input.
type Snapshot struct {
	Digest digest.Digest
	Files  []string
}

// SnapshotDir captures a directory from the local filesystem into the
// store. The keep predicate, if non-nil, filters files by their
// tree-relative slash path; directories are always descended, and
// directories left empty by filtering are dropped.
func (s *Store) SnapshotDir(root string, keep func(rel string) bool) (Snapshot, error) {
	snap, err := s.snapshotDir(root, "", keep)
	if err != nil {
		return Snapshot{}, err
	}
	sort.Strings(snap.Files)
	return snap, nil
}

func (s *Store) snapshotDir(dir, rel string, keep func(string) bool) (Snapshot, error) {
	listing, err := os.ReadDir(dir)
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: snapshot %q: %w", dir, err)
	}
	var entries []Entry
	var files []string
	for _, ent := range listing {
		childRel := ent.Name()
		if rel != "" {
			childRel = rel + "/" + ent.Name()
		}
		if ent.IsDir() {
			sub, err := s.snapshotDir(filepath.Join(dir, ent.Name()), childRel, keep)
			if err != nil {
				return Snapshot{}, err
			}
			if len(sub.Files) == 0 {
				continue
			}
			entries = append(entries, Entry{Name: ent.Name(), Digest: sub.Digest, IsDir: true})
			files = append(files, sub.Files...)
			continue
		}
		if !ent.Type().IsRegular() {
			continue
		}
		if keep != nil && !keep(childRel) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			return Snapshot{}, fmt.Errorf("store: snapshot %q: %w", childRel, err)
		}
		blob, err := s.WriteBlob(content)
		if err != nil {
			return Snapshot{}, err
		}
		info, err := ent.Info()
		if err != nil {
			return Snapshot{}, err
		}
		entries = append(entries, Entry{
			Name:       ent.Name(),
			Digest:     blob,
			Executable: info.Mode()&0o111 != 0,
		})
		files = append(files, childRel)
	}
	tree, err := s.WriteTree(entries)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Digest: tree, Files: files}, nil
}

// Materialize writes the tree at d into dir on the local filesystem,
// creating directories as needed. Existing files are overwritten.
func (s *Store) Materialize(d digest.Digest, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: materialize: %w", err)
	}
	entries, err := s.ReadTree(d)
	if err != nil {
		return err
	}
	for _, e := range entries {
		target := filepath.Join(dir, e.Name)
		if e.IsDir {
			if err := s.Materialize(e.Digest, target); err != nil {
				return err
			}
			continue
		}
		content, err := s.ReadBlob(e.Digest)
		if err != nil {
			return err
		}
		mode := os.FileMode(0o644)
		if e.Executable {
			mode = 0o755
		}
		if err := os.WriteFile(target, content, mode); err != nil {
			return fmt.Errorf("store: materialize %q: %w", target, err)
		}
	}
	return nil
}
