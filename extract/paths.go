package extract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxLinkHops bounds how many symlinks resolveInside follows.
const maxLinkHops = 40

// memberPath joins an archive member name onto destDir, rejecting names that
// would escape it either lexically or through a symlink extracted earlier.
func memberPath(destDir, name string) (string, error) {
	root := filepath.Clean(destDir)
	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrIllegalPath, name)
	}
	if target == root {
		return target, nil
	}

	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrIllegalPath, name)
	}
	if _, err := resolveInside(root, rel); err != nil {
		return "", fmt.Errorf("%w: %s", err, name)
	}
	return target, nil
}

// checkLinkTarget rejects symlink targets that are absolute or resolve outside
// destDir, following any symlinks already on disk along the way.
func checkLinkTarget(destDir, linkPath, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: absolute link target %s", ErrIllegalPath, linkname)
	}
	root := filepath.Clean(destDir)
	rel, err := filepath.Rel(root, filepath.Dir(linkPath))
	if err != nil {
		return fmt.Errorf("%w: link %s", ErrIllegalPath, linkPath)
	}
	// Not joined with filepath.Join: "dir/link/.." must go through link.
	if _, err := resolveInside(root, rel+"/"+linkname); err != nil {
		return fmt.Errorf("%w: link %s -> %s", err, linkPath, linkname)
	}
	return nil
}

// resolveInside walks path, relative to root, one element at a time the way
// the kernel would, following symlinks that already exist. Missing elements
// are taken literally. It fails as soon as the walk leaves root.
func resolveInside(root, path string) (string, error) {
	pending := strings.Split(filepath.ToSlash(path), "/")
	var resolved []string
	hops := 0

	for len(pending) > 0 {
		elem := pending[0]
		pending = pending[1:]

		switch elem {
		case "", ".":
			continue
		case "..":
			if len(resolved) == 0 {
				return "", fmt.Errorf("%w: %s leaves destination", ErrIllegalPath, path)
			}
			resolved = resolved[:len(resolved)-1]
			continue
		}

		next := filepath.Join(root, filepath.Join(resolved...), elem)
		fi, err := os.Lstat(next)
		if err != nil || fi.Mode()&os.ModeSymlink == 0 {
			resolved = append(resolved, elem)
			continue
		}

		hops++
		if hops > maxLinkHops {
			return "", fmt.Errorf("%w: too many links in %s", ErrIllegalPath, path)
		}
		link, err := os.Readlink(next)
		if err != nil {
			return "", fmt.Errorf("read link %s: %w", next, err)
		}
		if filepath.IsAbs(link) {
			return "", fmt.Errorf("%w: %s goes through absolute link %s", ErrIllegalPath, path, link)
		}
		pending = append(strings.Split(filepath.ToSlash(link), "/"), pending...)
	}
	return filepath.Join(root, filepath.Join(resolved...)), nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	// A previous extraction may have left a symlink here.
	if err := removeIfExists(target); err != nil {
		return err
	}

	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	return nil
}

func writeSymlink(destDir, target, linkname string) error {
	if err := checkLinkTarget(destDir, target, linkname); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}
	if err := removeIfExists(target); err != nil {
		return err
	}
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}
	return nil
}

func removeIfExists(path string) error {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.IsDir() {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
