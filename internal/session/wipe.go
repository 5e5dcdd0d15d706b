package session

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// secureWipe overwrites every regular file under dir with zeros before
// removing the tree. Best-effort: this lowers the odds of recovering session
// artifacts from disk, it is not a forensic guarantee.
func secureWipe(dir string) error {
	if dir == "" {
		return nil
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return zeroFile(path)
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("wipe %s: %w", dir, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	return nil
}

func zeroFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	zeros := make([]byte, 64*1024)
	remaining := info.Size()
	for remaining > 0 {
		chunk := int64(len(zeros))
		if remaining < chunk {
			chunk = remaining
		}
		if _, err := f.Write(zeros[:chunk]); err != nil {
			return err
		}
		remaining -= chunk
	}
	return f.Sync()
}
