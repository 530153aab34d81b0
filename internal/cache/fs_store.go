package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const tempPrefix = ".cache-"

// entryPath 返回 key 在命名空间目录下的绝对路径，key 必须是单个路径片段。
func (s *Store) entryPath(key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.dir, key), nil
}

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	if strings.HasPrefix(key, tempPrefix) {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}

// readFile 读取磁盘条目；不存在或是目录时返回 (nil, false, nil)。
func readFile(filePath string) ([]byte, bool, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if info.IsDir() {
		return nil, false, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func fileExists(filePath string) bool {
	info, err := os.Stat(filePath)
	return err == nil && !info.IsDir()
}

// writeFileAtomic 先写同目录临时文件再 rename 到最终路径，失败时清理临时文件，
// 因此最终路径上要么是旧内容，要么是完整的新内容。
func writeFileAtomic(filePath string, data []byte, modTime time.Time) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}

	if !modTime.IsZero() {
		if err := os.Chtimes(filePath, modTime, modTime); err != nil {
			return err
		}
	}
	return nil
}

func removeFile(filePath string) error {
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
