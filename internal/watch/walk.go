package watch

import "os"

// walkDirs calls fn for root and every directory beneath it, skipping
// symlinks (watching through a symlinked directory risks escaping the
// home tree and double-watching shared targets).
func walkDirs(root string, fn func(dir string) error) error {
	info, err := os.Lstat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
		return nil
	}

	if err := fn(root); err != nil {
		return err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		if err := walkDirs(root+string(os.PathSeparator)+entry.Name(), fn); err != nil {
			return err
		}
	}
	return nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
