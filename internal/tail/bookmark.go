package tail

import (
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// bookmark 는 재시작 후 이어 읽기 위한 파일 위치.
type bookmark struct {
	Path   string `json:"path"`
	Inode  uint64 `json:"inode"`
	Offset int64  `json:"offset"`
}

// loadBookmark 는 path 가 비었거나 파일이 없으면 zero 값을 반환한다.
// 깨진 파일도 처음부터 시작하는 것으로 취급한다.
func loadBookmark(path string) (bookmark, error) {
	if path == "" {
		return bookmark{}, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return bookmark{}, nil
		}
		return bookmark{}, err
	}
	var b bookmark
	if err := json.Unmarshal(data, &b); err != nil {
		return bookmark{}, nil //nolint:nilerr // corrupt bookmark is treated as empty state
	}
	return b, nil
}

// saveBookmark 는 tmp 에 쓰고 rename 한다.
func saveBookmark(path string, b bookmark) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
