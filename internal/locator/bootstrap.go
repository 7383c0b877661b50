package locator

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"ipregion/internal/logger"
)

// Bootstrap：dst 不存在时把 fsys 中打包的库文件复制为可读写的本地文件
// 约束：先写临时文件再原子重命名，避免并发启动读到半个文件；已存在则不覆盖
func Bootstrap(fsys fs.FS, name, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	src, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("bootstrap: open resource %s: %w", name, err)
	}
	defer src.Close()
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ip2region-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("bootstrap: copy %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return err
	}
	logger.L().Info("db_bootstrap_done", "resource", name, "dst", dst, "bytes", n)
	return nil
}

// BootstrapFile：以本地文件作为打包资源
func BootstrapFile(resource, dst string) error {
	return Bootstrap(os.DirFS(filepath.Dir(resource)), filepath.Base(resource), dst)
}
