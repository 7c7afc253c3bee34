// Package stage copies a read-only vendored source tree into a writable
// workspace so build tools can modify it freely.
package stage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"
)

// Error reports a failed staging operation. Staging errors are fatal.
type Error struct {
	Op   string // "walk", "mkdir", "copy"
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Copy recursively copies every file and directory under src into dst,
// preserving relative paths and permission bits. Staged files always get the
// owner write bit. Directories are created as needed and existing files in dst are
// overwritten. Symlinks are recreated, not followed. src is never modified and
// dst must not lie inside src.
//
// fn, if non-nil, is called with each copied file's relative path.
func Copy(src, dst string, fn func(rel string)) error {
	info, err := os.Stat(src)
	if err != nil {
		return &Error{Op: "walk", Path: src, Err: err}
	}
	if !info.IsDir() {
		return &Error{Op: "walk", Path: src, Err: fmt.Errorf("not a directory")}
	}
	if within(dst, src) {
		return &Error{Op: "walk", Path: dst, Err: fmt.Errorf("destination is inside %s", src)}
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return &Error{Op: "mkdir", Path: dst, Err: err}
	}

	var staged []string
	opt := copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Shallow },
		// keep staged files writable even if the vendored ones are not
		PermissionControl: copy.AddPermission(0o200),
		Skip: func(fi os.FileInfo, path, target string) (bool, error) {
			if fi.IsDir() {
				return false, nil
			}
			// an earlier run may have left a read-only copy or a symlink behind
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return false, &Error{Op: "copy", Path: target, Err: err}
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return false, &Error{Op: "walk", Path: path, Err: err}
			}
			staged = append(staged, rel)
			return false, nil
		},
	}
	if err := copy.Copy(src, dst, opt); err != nil {
		var se *Error
		if errors.As(err, &se) {
			return se
		}
		return &Error{Op: "copy", Path: src, Err: err}
	}
	if fn != nil {
		for _, rel := range staged {
			fn(rel)
		}
	}
	return nil
}

func within(path, dir string) bool {
	p, err1 := filepath.Abs(path)
	d, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(d, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
