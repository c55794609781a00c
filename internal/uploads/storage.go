// Package uploads 提供用户上传文件（充值凭证、产品图、广告图、工单附件）的落盘与读取。
package uploads

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// 上传文件的归类目录，同时也是对外 URL 的第一级路径。
const (
	KindProof   = "proofs"
	KindProduct = "products"
	KindAd      = "ads"
	KindTicket  = "tickets"
)

var validKinds = map[string]bool{
	KindProof:   true,
	KindProduct: true,
	KindAd:      true,
	KindTicket:  true,
}

type Storage struct {
	baseDir string
}

func NewStorage(baseDir string) *Storage {
	return &Storage{baseDir: strings.TrimSpace(baseDir)}
}

func (s *Storage) BaseDir() string {
	return s.baseDir
}

type SaveResult struct {
	RelPath   string
	SizeBytes int64
}

// Save 原子落盘：先写临时文件再 rename，避免出现半截文件。
// ext 取自原始文件名，仅保留常见图片/文档后缀，其余一律存为 .bin。
func (s *Storage) Save(kind string, now time.Time, originalName string, src io.Reader) (SaveResult, error) {
	if strings.TrimSpace(s.baseDir) == "" {
		return SaveResult{}, errors.New("上传目录未配置")
	}
	if !validKinds[kind] {
		return SaveResult{}, errors.New("上传类别非法")
	}

	now = now.UTC()
	subDir := filepath.Join(kind, now.Format("20060102"))
	name, err := randomToken(16)
	if err != nil {
		return SaveResult{}, err
	}

	finalRel := filepath.ToSlash(filepath.Join(subDir, name+safeExt(originalName)))
	finalPath, err := s.resolve(finalRel)
	if err != nil {
		return SaveResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return SaveResult{}, fmt.Errorf("创建上传目录失败: %w", err)
	}

	tmpPath := finalPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return SaveResult{}, fmt.Errorf("创建上传文件失败: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	n, err := io.Copy(f, src)
	if err != nil {
		_ = os.Remove(tmpPath)
		return SaveResult{}, fmt.Errorf("写入上传文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return SaveResult{}, fmt.Errorf("关闭上传文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return SaveResult{}, fmt.Errorf("落盘上传文件失败: %w", err)
	}
	return SaveResult{RelPath: finalRel, SizeBytes: n}, nil
}

var allowedExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".pdf":  true,
	".txt":  true,
}

func safeExt(originalName string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(originalName)))
	if allowedExts[ext] {
		return ext
	}
	return ".bin"
}

// Resolve 把数据库里的相对路径转换为磁盘绝对路径，并拒绝任何越界路径。
func (s *Storage) Resolve(relPath string) (string, error) {
	return s.resolve(relPath)
}

func (s *Storage) resolve(relPath string) (string, error) {
	if strings.TrimSpace(s.baseDir) == "" {
		return "", errors.New("上传目录未配置")
	}
	rel := strings.TrimSpace(relPath)
	if rel == "" {
		return "", errors.New("上传路径为空")
	}
	if strings.Contains(rel, "\x00") || strings.Contains(rel, "\\") {
		return "", errors.New("上传路径非法")
	}
	cleanRel := filepath.Clean(filepath.FromSlash(rel))
	if cleanRel == "." || cleanRel == string(filepath.Separator) {
		return "", errors.New("上传路径非法")
	}
	if filepath.IsAbs(cleanRel) {
		return "", errors.New("上传路径非法")
	}
	if strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) || cleanRel == ".." {
		return "", errors.New("上传路径非法")
	}

	base := filepath.Clean(s.baseDir)
	full := filepath.Clean(filepath.Join(base, cleanRel))
	prefix := base + string(filepath.Separator)
	if full != base && !strings.HasPrefix(full, prefix) {
		return "", errors.New("上传路径非法")
	}
	return full, nil
}

func randomToken(n int) (string, error) {
	if n < 16 {
		n = 16
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("生成随机数失败: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
