// Package upload は申請フォームの添付ファイルの保存と取得を提供する。
package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/demulla/servicedesk/internal/model"
)

// allowedExtensions は受け付ける添付ファイルの拡張子。
var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".log":  true,
}

// unsafeNameChars はファイル名から除去する文字。英数字とドット、ハイフン、
// アンダースコア以外はすべて置換する。
var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store は添付ファイルをローカルディスクに保存する。
// 保存名は「リクエストID_元ファイル名」で、取得時のIDとの突き合わせに使う。
type Store struct {
	dir     string
	maxSize int64
}

// NewStore はStoreを生成し、保存先ディレクトリを用意する。
func NewStore(dir string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{dir: dir, maxSize: maxSize}, nil
}

// IsAllowed はファイル名の拡張子が受付対象かどうかを判定する。
func IsAllowed(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ScrubFilename はファイル名からパス区切りと危険な文字を除去する。
func ScrubFilename(filename string) string {
	base := filepath.Base(filename)
	base = unsafeNameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	return base
}

// Save は添付ファイルを検証して保存し、保存名を返す。
// 拡張子が受付対象外の場合とファイル名が無効な場合はINVALID_ATTACHMENT。
// maxSizeを超える内容は途中で打ち切らず、エラーとして拒否する。
func (s *Store) Save(requestID, filename string, r io.Reader) (string, error) {
	if !IsAllowed(filename) {
		return "", model.NewInvalidAttachmentError(filename)
	}
	scrubbed := ScrubFilename(filename)
	if scrubbed == "" || !IsAllowed(scrubbed) {
		return "", model.NewInvalidAttachmentError(filename)
	}

	storedName := fmt.Sprintf("%s_%s", requestID, scrubbed)
	path := filepath.Join(s.dir, storedName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create attachment file: %w", err)
	}
	defer f.Close()

	// maxSize+1まで読み、超過を検出する
	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write attachment: %w", err)
	}
	if n > s.maxSize {
		os.Remove(path)
		return "", model.NewValidationError("添付ファイルのサイズが上限を超えています")
	}

	return storedName, nil
}

// Open は保存済みの添付ファイルを開く。
// storedNameはScrubFilename済みの保存名のみを受け付け、パストラバーサルを拒否する。
// 見つからない場合は(nil, nil)を返す。
func (s *Store) Open(storedName string) (io.ReadCloser, error) {
	if storedName != filepath.Base(storedName) || strings.Contains(storedName, "..") {
		return nil, model.NewInvalidAttachmentError(storedName)
	}

	f, err := os.Open(filepath.Join(s.dir, storedName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	return f, nil
}
