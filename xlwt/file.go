package xlwt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// writeTmpThenMove writes to a temporary file next to outPath and renames it
// into place once write succeeded, so a failed write never leaves a partial
// file at outPath.
func writeTmpThenMove(outPath string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(outPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(f)
	if err = write(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("rename temp to final: %w", err)
	}
	return nil
}
