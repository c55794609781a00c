// Package client 是 ratemall 后端的同步层 SDK：会话持有者 + 按实体实例化的
// 远端集合同步器。本地状态只反映服务端确认过的副本，涉及金额的字段绝不乐观更新。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
	cache   Cache
	notify  *Notifier

	mu      sync.Mutex
	session *Session
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithCache(cache Cache) Option {
	return func(c *Client) {
		if cache != nil {
			c.cache = cache
		}
	}
}

func WithNotifier(n *Notifier) Option {
	return func(c *Client) {
		if n != nil {
			c.notify = n
		}
	}
}

// New 创建 SDK 客户端。baseURL 指向后端根地址（不含 /api）。
// 若缓存里有上次的会话快照，会先恢复为陈旧可用状态。
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		cache:   NewMemCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.cache.Init(); err != nil {
		return nil, err
	}
	c.restoreSessionFromCache()
	return c, nil
}

// Notify 返回客户端挂载的通知队列；未配置时返回 nil。
func (c *Client) Notify() *Notifier {
	return c.notify
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.Token
}

func (c *Client) pushNotice(kind, message string) {
	if c.notify != nil {
		c.notify.Push(kind, message)
	}
}

// doJSON 发送 JSON 请求并把响应归一化：网络错误、401、业务拒绝分别映射到
// APIError 的对应分类。401 无条件清空本地会话。
func (c *Client) doJSON(ctx context.Context, method, path string, payload any) (gjson.Result, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return gjson.Result{}, newError(ErrorKindValidation, "无法序列化请求参数")
		}
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, method, path, body, "application/json")
}

// FilePart 描述 multipart 请求里的一个文件字段。
type FilePart struct {
	Field    string
	Filename string
	Content  []byte
}

func (c *Client) doMultipart(ctx context.Context, method, path string, fields map[string]string, files []FilePart) (gjson.Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return gjson.Result{}, newError(ErrorKindValidation, "无法构造表单")
		}
	}
	for _, f := range files {
		if f.Field == "" || f.Filename == "" {
			return gjson.Result{}, newError(ErrorKindValidation, "附件缺少字段名或文件名")
		}
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return gjson.Result{}, newError(ErrorKindValidation, "无法构造表单")
		}
		if _, err := part.Write(f.Content); err != nil {
			return gjson.Result{}, newError(ErrorKindValidation, "无法构造表单")
		}
	}
	if err := w.Close(); err != nil {
		return gjson.Result{}, newError(ErrorKindValidation, "无法构造表单")
	}
	return c.do(ctx, method, path, &buf, w.FormDataContentType())
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return gjson.Result{}, newError(ErrorKindValidation, "无法构造请求")
	}
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, newError(ErrorKindNetwork, "网络请求失败: "+err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, newError(ErrorKindNetwork, "读取响应失败: "+err.Error())
	}
	doc := gjson.ParseBytes(raw)

	if resp.StatusCode == http.StatusUnauthorized {
		// 令牌失效：本地会话立即作废，上层应跳转登录。
		c.clearLocalSession()
		return gjson.Result{}, newError(ErrorKindAuth, messageOr(doc, "登录状态已失效"))
	}
	if resp.StatusCode == http.StatusNotFound {
		return gjson.Result{}, newError(ErrorKindBusiness, messageOr(doc, "资源不存在"))
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, newError(ErrorKindNetwork, messageOr(doc, resp.Status))
	}
	if !doc.Get("success").Bool() {
		return gjson.Result{}, newError(ErrorKindBusiness, messageOr(doc, "请求被拒绝"))
	}
	return doc.Get("data"), nil
}

func messageOr(doc gjson.Result, fallback string) string {
	if msg := strings.TrimSpace(doc.Get("message").String()); msg != "" {
		return msg
	}
	return fallback
}

func encodeQuery(path string, filter url.Values) string {
	if len(filter) == 0 {
		return path
	}
	return path + "?" + filter.Encode()
}
