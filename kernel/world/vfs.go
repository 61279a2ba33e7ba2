// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"strings"
	"sync"
	"time"

	"github.com/clove-kernel/clove/lib/clock"
	"github.com/clove-kernel/clove/lib/pattern"
)

// FileMode distinguishes a read-only virtual file from a read-write
// one (spec §4.9).
type FileMode string

const (
	ModeReadOnly  FileMode = "r"
	ModeReadWrite FileMode = "rw"
)

// VirtualFile is one in-memory file entry (spec §3).
type VirtualFile struct {
	Content    string    `json:"content"`
	Mode       FileMode  `json:"mode"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// VFSConfig is the initial configuration accepted by Configure (spec
// §4.9, grounded on virtual_fs.hpp's configure() JSON shape).
type VFSConfig struct {
	InitialFiles      map[string]struct {
		Content string   `json:"content"`
		Mode    FileMode `json:"mode"`
	} `json:"initial_files"`
	ReadonlyPatterns  []string `json:"readonly_patterns"`
	WritablePatterns  []string `json:"writable_patterns"`
	InterceptPatterns []string `json:"intercept_patterns"`
}

// VFS is an in-memory path-addressed filesystem scoped to one World.
// Safe for concurrent use; owns exactly one lock (spec §5).
type VFS struct {
	clock clock.Clock

	mu                sync.Mutex
	files             map[string]VirtualFile
	readonlyPatterns  []string
	writablePatterns  []string
	interceptPatterns []string
	readCount         uint64
	writeCount        uint64
}

// NewVFS creates an empty VFS.
func NewVFS(clk clock.Clock) *VFS {
	return &VFS{clock: clk, files: make(map[string]VirtualFile)}
}

// NormalizePath collapses "." and ".." segments and repeated slashes,
// and ensures a leading "/" (spec §4.9).
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	segments := strings.Split(p, "/")
	var stack []string
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}
	return "/" + strings.Join(stack, "/")
}

// Configure applies cfg, replacing any existing files and patterns.
func (v *VFS) Configure(cfg VFSConfig) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.clock.Now()
	v.files = make(map[string]VirtualFile, len(cfg.InitialFiles))
	for p, f := range cfg.InitialFiles {
		mode := f.Mode
		if mode == "" {
			mode = ModeReadWrite
		}
		v.files[NormalizePath(p)] = VirtualFile{Content: f.Content, Mode: mode, CreatedAt: now, ModifiedAt: now}
	}
	v.readonlyPatterns = cfg.ReadonlyPatterns
	v.writablePatterns = cfg.WritablePatterns
	v.interceptPatterns = cfg.InterceptPatterns
}

// Enabled reports whether the VFS has any files or patterns
// configured — an empty VFS never intercepts anything.
func (v *VFS) Enabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.files) > 0 || len(v.readonlyPatterns) > 0 ||
		len(v.writablePatterns) > 0 || len(v.interceptPatterns) > 0
}

// Exists reports whether path has a VFS entry.
func (v *VFS) Exists(path string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.files[NormalizePath(path)]
	return ok
}

// Read returns the content at path and increments the read counter
// (spec §4.9 "read(p) ... increments read counters").
func (v *VFS) Read(path string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	file, ok := v.files[NormalizePath(path)]
	if !ok {
		return "", false
	}
	v.readCount++
	return file.Content, true
}

// Write creates or updates path. Denied if the existing entry is
// read-only, or if writable_patterns is non-empty and path matches
// none of them (spec §4.9).
func (v *VFS) Write(path, content string, appendContent bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	normalized := NormalizePath(path)
	existing, exists := v.files[normalized]
	if exists && existing.Mode == ModeReadOnly {
		return false
	}
	if len(v.writablePatterns) > 0 && !pattern.MatchAny(v.writablePatterns, normalized) {
		return false
	}

	now := v.clock.Now()
	newContent := content
	createdAt := now
	if exists {
		createdAt = existing.CreatedAt
		if appendContent {
			newContent = existing.Content + content
		}
	}
	v.files[normalized] = VirtualFile{Content: newContent, Mode: ModeReadWrite, CreatedAt: createdAt, ModifiedAt: now}
	v.writeCount++
	return true
}

// Remove deletes path. Fails if the entry is read-only or absent
// (spec §4.9).
func (v *VFS) Remove(path string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	normalized := NormalizePath(path)
	file, ok := v.files[normalized]
	if !ok || file.Mode == ModeReadOnly {
		return false
	}
	delete(v.files, normalized)
	return true
}

// List returns every stored path matching pattern ("*" lists
// everything).
func (v *VFS) List(p string) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var matched []string
	for path := range v.files {
		if p == "*" || pattern.Match(p, path) {
			matched = append(matched, path)
		}
	}
	return matched
}

// Stat returns the stored metadata for path.
func (v *VFS) Stat(path string) (VirtualFile, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	file, ok := v.files[NormalizePath(path)]
	return file, ok
}

// IsWritable reports whether path is permitted by writable_patterns
// (vacuously true if none are configured).
func (v *VFS) IsWritable(path string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.writablePatterns) == 0 {
		return true
	}
	return pattern.MatchAny(v.writablePatterns, NormalizePath(path))
}

// IsReadable reports whether path exists or matches readonly_patterns.
func (v *VFS) IsReadable(path string) bool {
	normalized := NormalizePath(path)
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.files[normalized]; ok {
		return true
	}
	return pattern.MatchAny(v.readonlyPatterns, normalized)
}

// ShouldIntercept reports whether path should be handled by the VFS
// rather than passed through to the real filesystem (spec §4.9).
func (v *VFS) ShouldIntercept(path string) bool {
	normalized := NormalizePath(path)
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.files[normalized]; ok {
		return true
	}
	return pattern.MatchAny(v.interceptPatterns, normalized)
}

// Snapshot returns a deep copy of every file and pattern list, used
// by the world engine to serialize a World (spec §4.11 "snapshot").
func (v *VFS) Snapshot() VFSSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	files := make(map[string]VirtualFile, len(v.files))
	for p, f := range v.files {
		files[p] = f
	}
	return VFSSnapshot{
		Files:             files,
		ReadonlyPatterns:  append([]string(nil), v.readonlyPatterns...),
		WritablePatterns:  append([]string(nil), v.writablePatterns...),
		InterceptPatterns: append([]string(nil), v.interceptPatterns...),
	}
}

// Restore replaces the VFS's contents with a previously captured
// snapshot (spec §4.11 "restore").
func (v *VFS) Restore(snap VFSSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.files = make(map[string]VirtualFile, len(snap.Files))
	for p, f := range snap.Files {
		v.files[p] = f
	}
	v.readonlyPatterns = snap.ReadonlyPatterns
	v.writablePatterns = snap.WritablePatterns
	v.interceptPatterns = snap.InterceptPatterns
}

// VFSSnapshot is the CBOR-serializable form of a VFS's contents.
type VFSSnapshot struct {
	Files             map[string]VirtualFile `cbor:"files"`
	ReadonlyPatterns  []string               `cbor:"readonly_patterns"`
	WritablePatterns  []string               `cbor:"writable_patterns"`
	InterceptPatterns []string               `cbor:"intercept_patterns"`
}
