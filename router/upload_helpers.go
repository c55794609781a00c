package router

import (
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"ratemall/internal/store"
	"ratemall/internal/uploads"
)

const (
	maxAttachments  = 10
	multipartMemory = 32 << 20
)

func parseUploadError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, http.ErrNotMultipart) {
		return "表单格式错误"
	}
	if strings.Contains(err.Error(), "request body too large") {
		return "上传超过大小限制"
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return "上传超过大小限制"
	}
	return "表单解析失败"
}

func sanitizeOriginalName(name string) string {
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "\\", "/")
	s = path.Base(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return "attachment"
	}
	rs := []rune(s)
	if len(rs) > 200 {
		s = string(rs[:200])
	}
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
	if strings.TrimSpace(s) == "" {
		return "attachment"
	}
	return s
}

func truncateASCII(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// saveAttachments 把 multipart 里的附件全部落盘；任何一个失败则回滚已保存的文件。
func saveAttachments(storage *uploads.Storage, kind string, now time.Time, files []*multipart.FileHeader) ([]store.NewTicketAttachment, []string, string) {
	if len(files) == 0 {
		return nil, nil, ""
	}
	if len(files) > maxAttachments {
		return nil, nil, "附件数量过多"
	}
	for _, fh := range files {
		if fh == nil {
			continue
		}
		if fh.Size <= 0 {
			return nil, nil, "附件为空文件"
		}
	}

	inputs := make([]store.NewTicketAttachment, 0, len(files))
	saved := make([]string, 0, len(files))
	for _, fh := range files {
		if fh == nil {
			continue
		}
		src, err := fh.Open()
		if err != nil {
			deleteSavedAttachments(storage, saved)
			return nil, nil, "读取附件失败"
		}
		func() {
			defer func() { _ = src.Close() }()
			res, err := storage.Save(kind, now, fh.Filename, src)
			if err != nil {
				deleteSavedAttachments(storage, saved)
				inputs = nil
				saved = nil
				return
			}
			saved = append(saved, res.RelPath)
			ct := strings.TrimSpace(fh.Header.Get("Content-Type"))
			var ctPtr *string
			if ct != "" {
				ct = truncateASCII(ct, 255)
				ctPtr = &ct
			}
			inputs = append(inputs, store.NewTicketAttachment{
				OriginalName:   sanitizeOriginalName(fh.Filename),
				ContentType:    ctPtr,
				SizeBytes:      res.SizeBytes,
				StorageRelPath: res.RelPath,
			})
		}()
		if inputs == nil {
			return nil, nil, "保存附件失败（请检查磁盘空间）"
		}
	}
	return inputs, saved, ""
}

func deleteSavedAttachments(storage *uploads.Storage, saved []string) {
	for _, rel := range saved {
		full, err := storage.Resolve(rel)
		if err != nil {
			continue
		}
		_ = os.Remove(full)
	}
}
