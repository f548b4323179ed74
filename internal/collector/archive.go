package collector

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// finalize compresses srcDir into dstArchive as a .tar.zst and removes
// srcDir. It writes to a temporary sibling file and renames into place so a
// reader only ever sees either no archive or a complete one — the Reclaimer
// must never observe a partially written archive.
func finalize(srcDir, dstArchive string) error {
	tmp := dstArchive + ".tmp"
	if err := writeTarZst(srcDir, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dstArchive); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize: rename %s: %w", tmp, err)
	}
	if err := os.RemoveAll(srcDir); err != nil {
		return fmt.Errorf("finalize: remove working dir %s: %w", srcDir, err)
	}
	return nil
}

func writeTarZst(srcDir, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("writeTarZst: create %s: %w", dst, err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("writeTarZst: zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("writeTarZst: read %s: %w", srcDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(srcDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("writeTarZst: stat %s: %w", path, err)
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("writeTarZst: header %s: %w", path, err)
		}
		hdr.Name = entry.Name()
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writeTarZst: write header %s: %w", path, err)
		}

		src, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("writeTarZst: open %s: %w", path, err)
		}
		_, err = io.Copy(tw, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("writeTarZst: copy %s: %w", path, err)
		}
	}
	return nil
}
