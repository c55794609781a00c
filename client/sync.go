package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// PartialPayload 把零散字段拼成 PATCH 请求体，键支持 "detail.address" 这类点路径。
func PartialPayload(fields map[string]any) (json.RawMessage, error) {
	out := "{}"
	for k, v := range fields {
		next, err := sjson.Set(out, k, v)
		if err != nil {
			return nil, newError(ErrorKindValidation, "无法构造更新字段 "+k)
		}
		out = next
	}
	return json.RawMessage(out), nil
}

// Collection 是按实体实例化的远端集合同步器：fetch all / create / update / remove。
// 本地副本只在服务端确认后替换，绝不乐观新增或删除；失败时本地状态原样保留。
type Collection[T any] struct {
	c      *Client
	decode func(gjson.Result) T
	id     func(T) int64

	// 路径布局。ListPath 为空时用 BasePath；Update/RemovePath 为空时
	// 用 BasePath + "/" + id。
	BasePath   string
	ListPath   string
	CreatePath string
	UpdatePath func(id int64) string
	RemovePath func(id int64) string

	mu    sync.Mutex
	items []T
}

func NewCollection[T any](c *Client, basePath string, decode func(gjson.Result) T, id func(T) int64) *Collection[T] {
	return &Collection[T]{c: c, decode: decode, id: id, BasePath: basePath}
}

// Items 返回本地副本的拷贝。
func (col *Collection[T]) Items() []T {
	col.mu.Lock()
	defer col.mu.Unlock()
	out := make([]T, len(col.items))
	copy(out, col.items)
	return out
}

func (col *Collection[T]) listPath() string {
	if col.ListPath != "" {
		return col.ListPath
	}
	return col.BasePath
}

func (col *Collection[T]) createPath() string {
	if col.CreatePath != "" {
		return col.CreatePath
	}
	return col.BasePath
}

func (col *Collection[T]) updatePath(id int64) string {
	if col.UpdatePath != nil {
		return col.UpdatePath(id)
	}
	return col.BasePath + "/" + strconv.FormatInt(id, 10)
}

func (col *Collection[T]) removePath(id int64) string {
	if col.RemovePath != nil {
		return col.RemovePath(id)
	}
	return col.BasePath + "/" + strconv.FormatInt(id, 10)
}

func decodeList[T any](data gjson.Result, decode func(gjson.Result) T) []T {
	src := data
	if !src.IsArray() {
		src = data.Get("items")
	}
	out := make([]T, 0)
	src.ForEach(func(_, item gjson.Result) bool {
		out = append(out, decode(item))
		return true
	})
	return out
}

// FetchAll 拉取集合并整体替换本地副本，不保留上一次过滤条件的残留。
func (col *Collection[T]) FetchAll(ctx context.Context, filter url.Values) ([]T, error) {
	data, err := col.c.doJSON(ctx, "GET", encodeQuery(col.listPath(), filter), nil)
	if err != nil {
		return nil, err
	}
	items := decodeList(data, col.decode)
	col.mu.Lock()
	col.items = items
	col.mu.Unlock()
	return col.Items(), nil
}

// Create 提交新实体；成功后把服务端返回的副本（带服务端分配的 id）追加到本地。
func (col *Collection[T]) Create(ctx context.Context, payload any) (T, error) {
	var zero T
	data, err := col.c.doJSON(ctx, "POST", col.createPath(), payload)
	if err != nil {
		return zero, err
	}
	return col.appendFromServer(data), nil
}

// CreateMultipart 同 Create，用于带图片/凭证附件的表单提交。
// 附件必须非空文件名，SDK 在发起请求前先行校验。
func (col *Collection[T]) CreateMultipart(ctx context.Context, fields map[string]string, files []FilePart) (T, error) {
	var zero T
	for _, f := range files {
		if len(f.Content) == 0 {
			return zero, newError(ErrorKindValidation, "附件内容为空")
		}
	}
	data, err := col.c.doMultipart(ctx, "POST", col.createPath(), fields, files)
	if err != nil {
		return zero, err
	}
	return col.appendFromServer(data), nil
}

func (col *Collection[T]) appendFromServer(data gjson.Result) T {
	item := col.decode(data)
	col.mu.Lock()
	col.items = append(col.items, item)
	col.mu.Unlock()
	return item
}

// Update 发送局部更新；成功后用服务端返回的完整副本替换本地对应项，
// 不做本地合并，避免漂移。
func (col *Collection[T]) Update(ctx context.Context, id int64, partial any) (T, error) {
	var zero T
	data, err := col.c.doJSON(ctx, "PATCH", col.updatePath(id), partial)
	if err != nil {
		return zero, err
	}
	item := col.decode(data)
	col.mu.Lock()
	for i := range col.items {
		if col.id(col.items[i]) == id {
			col.items[i] = item
			break
		}
	}
	col.mu.Unlock()
	return item, nil
}

// UpdateMultipart 同 Update，用于带图片的表单式局部更新（如产品改图）。
func (col *Collection[T]) UpdateMultipart(ctx context.Context, id int64, fields map[string]string, files []FilePart) (T, error) {
	var zero T
	data, err := col.c.doMultipart(ctx, "PATCH", col.updatePath(id), fields, files)
	if err != nil {
		return zero, err
	}
	item := col.decode(data)
	col.mu.Lock()
	for i := range col.items {
		if col.id(col.items[i]) == id {
			col.items[i] = item
			break
		}
	}
	col.mu.Unlock()
	return item, nil
}

// Remove 删除实体；只有服务端确认后才移除本地项，失败时本地不动。
func (col *Collection[T]) Remove(ctx context.Context, id int64) error {
	if _, err := col.c.doJSON(ctx, "DELETE", col.removePath(id), nil); err != nil {
		return err
	}
	col.mu.Lock()
	kept := col.items[:0]
	for _, item := range col.items {
		if col.id(item) != id {
			kept = append(kept, item)
		}
	}
	col.items = kept
	col.mu.Unlock()
	return nil
}

// 预置的按实体适配器。

func (c *Client) Users() *Collection[User] {
	col := NewCollection(c, "/api/user", DecodeUser, User.EntityID)
	col.ListPath = "/api/user/all"
	return col
}

func (c *Client) FundPayments() *Collection[FundPayment] {
	col := NewCollection(c, "/api/fund-payments", DecodeFundPayment, FundPayment.EntityID)
	col.CreatePath = "/api/fund-payments/add"
	col.UpdatePath = func(id int64) string {
		return "/api/fund-payments/update/" + strconv.FormatInt(id, 10)
	}
	return col
}

// FundPaymentsOfUser 普通用户视角：只列出自己的充值单。
func (c *Client) FundPaymentsOfUser(userID int64) *Collection[FundPayment] {
	col := c.FundPayments()
	col.ListPath = "/api/fund-payments/user/" + strconv.FormatInt(userID, 10)
	return col
}

func (c *Client) Products() *Collection[Product] {
	col := NewCollection(c, "/api/products", DecodeProduct, Product.EntityID)
	col.ListPath = "/api/products/all"
	return col
}

func (c *Client) Payouts() *Collection[PayoutRequest] {
	col := NewCollection(c, "/api/payout", DecodePayoutRequest, PayoutRequest.EntityID)
	col.CreatePath = "/api/payout/submit"
	col.UpdatePath = func(id int64) string {
		return "/api/payout/admin/" + strconv.FormatInt(id, 10)
	}
	return col
}

func (c *Client) Tickets() *Collection[Ticket] {
	return NewCollection(c, "/api/support", DecodeTicket, Ticket.EntityID)
}

func (c *Client) Ads() *Collection[Ad] {
	return NewCollection(c, "/api/ads", DecodeAd, Ad.EntityID)
}
