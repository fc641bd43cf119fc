// Package snapshot implements the kernel's on-disk VFS persistence
// format: a versioned manifest of inode entries, each carrying its
// data either inline (zstd-compressed) or as an external blob file named
// by a random UUID, guarded by a host-level file lock distinct from the in-kernel
// advisory locks in kernel/ipc/filelock.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	kerrors "github.com/axeberg/axebergos/errors"
	"github.com/axeberg/axebergos/kernel/vfs"
)

// Magic identifies an axebergos snapshot file.
var Magic = [5]byte{'A', 'X', 'B', 'G', 0x00}

// FormatVersion is the on-disk manifest layout version.
const FormatVersion byte = 1

// inlineThreshold is the largest payload stored inline (compressed) in the
// manifest; anything larger is written as an external blob in the
// "<path>.blobs" directory next to the manifest file, named by a fresh
// random UUID (not the manifest's generation UUID).
const inlineThreshold = 16 << 10

// NodeKind mirrors vfs.Kind for the serialized form.
type NodeKind int

const (
	NodeFile NodeKind = iota
	NodeDir
	NodeSymlink
)

// Entry is one persisted filesystem node.
type Entry struct {
	Path       string   `json:"path"`
	Kind       NodeKind `json:"kind"`
	Mode       uint32   `json:"mode"`
	Uid        uint32   `json:"uid"`
	Gid        uint32   `json:"gid"`
	LinkTarget string   `json:"linkTarget,omitempty"`

	// Inline holds zstd-compressed file data when small enough to embed
	// directly in the manifest.
	Inline []byte `json:"inline,omitempty"`

	// BlobRef names an external file (relative to the "<path>.blobs"
	// directory beside the manifest file) holding zstd-compressed data too large to inline.
	BlobRef string `json:"blobRef,omitempty"`
}

// Manifest is the full decoded snapshot: a generation id and its ordered
// node entries (parents always precede children, so replay can create
// directories top-down).
type Manifest struct {
	Generation uuid.UUID `json:"generation"`
	Entries    []Entry   `json:"entries"`
}

func headerBytes() []byte {
	return append(Magic[:], FormatVersion)
}

// Save walks tree from root and writes a snapshot to path, acquiring a
// host-level exclusive lock on path+".lock" for the duration (distinct
// from any in-kernel advisory lock on the files being read).
func Save(tree *vfs.Tree, root string, path string) (uuid.UUID, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("snapshot: acquire lock: %w", err)
	}
	if !locked {
		return uuid.UUID{}, fmt.Errorf("snapshot: %s is already being written", path)
	}
	defer lock.Unlock()

	gen := uuid.New()
	entries, err := collect(tree, root)
	if err != nil {
		return uuid.UUID{}, err
	}

	blobDir := path + ".blobs"
	m := Manifest{Generation: gen, Entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		enc, err := encodeEntry(e, blobDir)
		if err != nil {
			return uuid.UUID{}, err
		}
		m.Entries = append(m.Entries, enc)
	}

	f, err := os.Create(path)
	if err != nil {
		return uuid.UUID{}, err
	}
	defer f.Close()

	if _, err := f.Write(headerBytes()); err != nil {
		return uuid.UUID{}, err
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(m); err != nil {
		return uuid.UUID{}, err
	}
	return gen, nil
}

type rawEntry struct {
	path string
	node *vfs.Inode
}

// collect walks the tree depth-first, parents before children.
func collect(tree *vfs.Tree, root string) ([]rawEntry, error) {
	var out []rawEntry
	var walk func(path string) error
	walk = func(path string) error {
		n, _, _, err := tree.Resolve(path, false)
		if err != nil {
			return err
		}
		out = append(out, rawEntry{path: path, node: n})
		if n.Kind == vfs.KindDir {
			children, err := tree.ReadDir(path, nil)
			if err != nil {
				return err
			}
			for _, c := range children {
				if c == "." || c == ".." {
					continue
				}
				if err := walk(filepath.Join(path, c)); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeEntry(re rawEntry, blobDir string) (Entry, error) {
	n := re.node
	e := Entry{Path: re.path, Mode: n.Mode, Uid: uint32(n.Uid), Gid: uint32(n.Gid)}
	switch n.Kind {
	case vfs.KindDir:
		e.Kind = NodeDir
		return e, nil
	case vfs.KindSymlink:
		e.Kind = NodeSymlink
		e.LinkTarget = n.Target()
		return e, nil
	default:
		e.Kind = NodeFile
	}

	data := make([]byte, n.Size())
	if _, err := n.ReadAt(0, data); err != nil && err != io.EOF {
		return Entry{}, err
	}
	compressed, err := compress(data)
	if err != nil {
		return Entry{}, err
	}
	if len(compressed) <= inlineThreshold {
		e.Inline = compressed
		return e, nil
	}
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return Entry{}, err
	}
	name := uuid.New().String()
	if err := os.WriteFile(filepath.Join(blobDir, name), compressed, 0o644); err != nil {
		return Entry{}, err
	}
	e.BlobRef = name
	return e, nil
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// Load reads and validates the manifest at path without touching a VFS
// tree; Restore applies it.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	hdr := make([]byte, len(Magic)+1)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	for i := range Magic {
		if hdr[i] != Magic[i] {
			return nil, fmt.Errorf("snapshot: %s is not an axebergos snapshot", path)
		}
	}
	if hdr[len(Magic)] != FormatVersion {
		return nil, fmt.Errorf("snapshot: unsupported format version %d", hdr[len(Magic)])
	}

	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Restore replays a manifest into tree, creating directories before the
// files and symlinks they contain (the manifest's entry order, produced
// by Save's depth-first walk, already guarantees this).
func Restore(tree *vfs.Tree, m *Manifest, blobDir string) error {
	for _, e := range m.Entries {
		switch e.Kind {
		case NodeDir:
			if e.Path == "/" {
				continue
			}
			if err := tree.Mkdir(e.Path, nil, e.Mode); err != nil && !kerrors.Is(err, kerrors.ErrExists) {
				return fmt.Errorf("snapshot: restore dir %s: %w", e.Path, err)
			}
		case NodeSymlink:
			if err := tree.Symlink(e.Path, e.LinkTarget, nil); err != nil {
				return fmt.Errorf("snapshot: restore symlink %s: %w", e.Path, err)
			}
		case NodeFile:
			data, err := decodePayload(e, blobDir)
			if err != nil {
				return err
			}
			n, err := tree.Create(e.Path, nil, e.Mode)
			if err != nil {
				return fmt.Errorf("snapshot: restore file %s: %w", e.Path, err)
			}
			if _, err := n.WriteAt(0, data); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodePayload(e Entry, blobDir string) ([]byte, error) {
	if e.Inline != nil {
		return decompress(e.Inline)
	}
	if e.BlobRef == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(filepath.Join(blobDir, e.BlobRef))
	if err != nil {
		return nil, err
	}
	return decompress(raw)
}
