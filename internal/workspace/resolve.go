// Package workspace resolves and validates filesystem paths against a
// workspace root, so that tools declaring a workspace dependency can
// reject arguments whose resolved paths escape that root.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ErrEscapesRoot is returned when a resolved path falls outside the
// workspace root.
var ErrEscapesRoot = errors.New("workspace: path escapes root")

// ErrMutableSymlink is returned when a path component is a symlink whose
// parent directory is writable, making it vulnerable to a TOCTOU rebind
// between resolution and use.
var ErrMutableSymlink = errors.New("workspace: path contains mutable symlink component")

// ErrHardlinked is returned when the resolved target is a regular file
// with more than one hard link.
var ErrHardlinked = errors.New("workspace: hardlinked file not allowed")

// Resolve resolves path relative to root and validates that the
// canonical result stays within root. Symlinks (including broken ones)
// are followed and re-checked; hardlinks and mutable-symlink parents are
// rejected. When restrict is false, only lexical joining/cleaning is
// performed and no boundary check is applied.
func Resolve(path, root string, restrict bool) (string, error) {
	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else {
		resolved = filepath.Clean(filepath.Join(root, path))
	}

	if !restrict {
		return resolved, nil
	}

	absRoot, _ := filepath.Abs(root)
	rootReal, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		rootReal = absRoot // root may not exist yet
	}

	absResolved, _ := filepath.Abs(resolved)
	real, err := filepath.EvalSymlinks(absResolved)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("workspace: resolve path: %w", err)
		}
		real, err = resolveMissing(absResolved, rootReal)
		if err != nil {
			return "", err
		}
	}

	if !IsInside(real, rootReal) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, path)
	}
	if hasMutableSymlinkParent(real) {
		return "", fmt.Errorf("%w: %s", ErrMutableSymlink, path)
	}
	if err := checkHardlink(real); err != nil {
		return "", err
	}

	return real, nil
}

// resolveMissing handles paths that do not yet exist: broken symlinks are
// followed to their target (recursively through existing ancestors) and
// re-validated; truly absent paths are canonicalized via their nearest
// existing ancestor.
func resolveMissing(absPath, rootReal string) (string, error) {
	if linfo, lerr := os.Lstat(absPath); lerr == nil && linfo.Mode()&os.ModeSymlink != 0 {
		target, readErr := os.Readlink(absPath)
		if readErr != nil {
			return "", fmt.Errorf("workspace: cannot resolve symlink: %w", readErr)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(absPath), target)
		}
		target = filepath.Clean(target)

		real, err := resolveThroughExistingAncestors(target)
		if err != nil {
			return "", fmt.Errorf("workspace: cannot resolve broken symlink target: %w", err)
		}
		if !IsInside(real, rootReal) {
			return "", fmt.Errorf("%w: broken symlink target outside root", ErrEscapesRoot)
		}
		return real, nil
	}

	parentReal, err := filepath.EvalSymlinks(filepath.Dir(absPath))
	if err != nil {
		return "", fmt.Errorf("workspace: cannot resolve parent path: %w", err)
	}
	return filepath.Join(parentReal, filepath.Base(absPath)), nil
}

// resolveThroughExistingAncestors canonicalizes target by resolving the
// deepest existing ancestor and re-appending the remaining components,
// catching chained symlinks (link1 -> link2 -> /outside) where an
// intermediate target escapes the root.
func resolveThroughExistingAncestors(target string) (string, error) {
	if real, err := filepath.EvalSymlinks(target); err == nil {
		return real, nil
	}

	current := target
	var tail []string
	for {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent

		if realParent, err := filepath.EvalSymlinks(current); err == nil {
			result := realParent
			for _, component := range tail {
				result = filepath.Join(result, component)
			}
			return result, nil
		}
	}
	return filepath.Clean(target), nil
}

// IsInside reports whether child is equal to, or nested under, parent.
func IsInside(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// hasMutableSymlinkParent reports whether any path component is a
// symlink whose containing directory is writable by this process — such
// a symlink could be rebound between Resolve and the caller's actual
// filesystem operation.
func hasMutableSymlinkParent(path string) bool {
	clean := filepath.Clean(path)
	components := strings.Split(clean, string(filepath.Separator))
	current := string(filepath.Separator)
	for _, comp := range components {
		if comp == "" {
			continue
		}
		current = filepath.Join(current, comp)
		info, err := os.Lstat(current)
		if err != nil {
			break
		}
		if info.Mode()&os.ModeSymlink != 0 {
			parentDir := filepath.Dir(current)
			if syscall.Access(parentDir, 0x2 /* W_OK */) == nil {
				return true
			}
		}
	}
	return false
}

// checkHardlink rejects regular files with more than one hard link.
// Directories naturally report nlink > 1 and are exempt.
func checkHardlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return nil // nonexistent — caller's operation will fail on its own
	}
	if info.IsDir() {
		return nil
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok && stat.Nlink > 1 {
		return fmt.Errorf("%w: %s", ErrHardlinked, path)
	}
	return nil
}

// CanonicalPrefix resolves prefix the same way Resolve resolves a root,
// for use in denied_paths / allowed-prefix comparisons against
// already-canonicalized paths.
func CanonicalPrefix(prefix string) string {
	abs, err := filepath.Abs(prefix)
	if err != nil {
		return filepath.Clean(prefix)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}
