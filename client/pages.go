package client

import (
	"context"
	"net/url"
	"strconv"
	"sync"
)

// ProductPager 是产品列表的单条分页轨道。normal 与 lucky 两个标签页各持有
// 一个独立实例，互不影响地向后翻页。是否还有下一页只看服务端的 has_more
// 标志，短页不代表到底。
type ProductPager struct {
	c     *Client
	kind  string // "normal" / "lucky" / ""（不过滤）
	limit int

	mu       sync.Mutex
	nextPage int
	hasMore  bool
	items    []Product
}

func NewProductPager(c *Client, kind string, limit int) *ProductPager {
	if limit <= 0 {
		limit = 20
	}
	return &ProductPager{c: c, kind: kind, limit: limit, nextPage: 1, hasMore: true}
}

// Items 返回已加载的全部页的拷贝。
func (p *ProductPager) Items() []Product {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Product, len(p.items))
	copy(out, p.items)
	return out
}

// HasMore 是否还应展示“加载更多”控件。
func (p *ProductPager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Reset 清空轨道，下一次 LoadMore 从第一页开始。
func (p *ProductPager) Reset() {
	p.mu.Lock()
	p.nextPage = 1
	p.hasMore = true
	p.items = nil
	p.mu.Unlock()
}

// LoadMore 拉取下一页并追加。到底后再调用是无害的空操作。
func (p *ProductPager) LoadMore(ctx context.Context) ([]Product, error) {
	p.mu.Lock()
	if !p.hasMore {
		p.mu.Unlock()
		return nil, nil
	}
	page := p.nextPage
	p.mu.Unlock()

	filter := url.Values{}
	filter.Set("page", strconv.Itoa(page))
	filter.Set("limit", strconv.Itoa(p.limit))
	if p.kind != "" {
		filter.Set("type", p.kind)
	}
	data, err := p.c.doJSON(ctx, "GET", encodeQuery("/api/products/all", filter), nil)
	if err != nil {
		return nil, err
	}

	batch := decodeList(data.Get("items"), DecodeProduct)
	p.mu.Lock()
	p.items = append(p.items, batch...)
	p.nextPage = page + 1
	p.hasMore = data.Get("has_more").Bool()
	p.mu.Unlock()
	return batch, nil
}
