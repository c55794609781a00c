package client

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// MessageFeed 把工单会话抽象成只增的消息流。PollingFeed 是默认实现（3 秒轮询），
// SSEFeed 走服务端推送；两者行为一致，按配置选择。
type MessageFeed interface {
	// Events 按服务端落库顺序送出新消息；流结束时关闭。
	Events() <-chan TicketMessage
	// Err 返回导致流终止的错误；正常 Close 为 nil。
	Err() error
	Close()
}

const defaultPollInterval = 3 * time.Second

type PollingFeed struct {
	c        *Client
	ticketID int64
	interval time.Duration

	cancel context.CancelFunc
	events chan TicketMessage
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error

	lastID int64
}

// NewPollingFeed 启动轮询。afterID 之前的消息不会重复送出，传 0 表示从头开始。
func NewPollingFeed(ctx context.Context, c *Client, ticketID int64, afterID int64, interval time.Duration) *PollingFeed {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	f := &PollingFeed{
		c:        c,
		ticketID: ticketID,
		interval: interval,
		cancel:   cancel,
		events:   make(chan TicketMessage, 16),
		lastID:   afterID,
	}
	f.wg.Add(1)
	go f.loop(ctx)
	return f
}

func (f *PollingFeed) Events() <-chan TicketMessage { return f.events }

func (f *PollingFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *PollingFeed) Close() {
	f.cancel()
	f.wg.Wait()
}

func (f *PollingFeed) fail(err error) {
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
}

func (f *PollingFeed) loop(ctx context.Context) {
	defer f.wg.Done()
	defer close(f.events)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if err := f.pollOnce(ctx); err != nil {
			// 鉴权失效没有恢复的可能，直接终止；网络抖动留给下一轮。
			if IsKind(err, ErrorKindAuth) {
				f.fail(err)
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *PollingFeed) pollOnce(ctx context.Context) error {
	filter := url.Values{}
	filter.Set("after", strconv.FormatInt(f.lastID, 10))
	path := "/api/support/" + strconv.FormatInt(f.ticketID, 10)
	data, err := f.c.doJSON(ctx, "GET", encodeQuery(path, filter), nil)
	if err != nil {
		return err
	}
	for _, m := range decodeList(data.Get("replies"), DecodeTicketMessage) {
		if m.ID <= f.lastID {
			continue
		}
		f.lastID = m.ID
		select {
		case f.events <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

type SSEFeed struct {
	cancel context.CancelFunc
	events chan TicketMessage
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewSSEFeed 订阅工单的 SSE 事件流。连接断开即流终止，重连策略交给调用方。
func NewSSEFeed(ctx context.Context, c *Client, ticketID int64, afterID int64) *SSEFeed {
	ctx, cancel := context.WithCancel(ctx)
	f := &SSEFeed{
		cancel: cancel,
		events: make(chan TicketMessage, 16),
	}
	f.wg.Add(1)
	go f.run(ctx, c, ticketID, afterID)
	return f
}

func (f *SSEFeed) Events() <-chan TicketMessage { return f.events }

func (f *SSEFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *SSEFeed) Close() {
	f.cancel()
	f.wg.Wait()
}

func (f *SSEFeed) fail(err error) {
	f.mu.Lock()
	if f.err == nil {
		f.err = err
	}
	f.mu.Unlock()
}

func (f *SSEFeed) run(ctx context.Context, c *Client, ticketID int64, afterID int64) {
	defer f.wg.Done()
	defer close(f.events)

	path := c.baseURL + "/api/support/" + strconv.FormatInt(ticketID, 10) + "/events?after=" + strconv.FormatInt(afterID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		f.fail(newError(ErrorKindValidation, "无法构造请求"))
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	// 长连接不能套普通请求的超时。
	hc := &http.Client{Transport: c.http.Transport}
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			f.fail(newError(ErrorKindNetwork, "订阅失败: "+err.Error()))
		}
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		kind := ErrorKindNetwork
		if resp.StatusCode == http.StatusUnauthorized {
			kind = ErrorKindAuth
		}
		f.fail(newError(kind, "订阅失败: "+resp.Status))
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, ":"):
			// 心跳注释行。
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if event != "message" {
				continue
			}
			doc := gjson.Parse(strings.TrimPrefix(line, "data: "))
			m := DecodeTicketMessage(doc)
			select {
			case f.events <- m:
			case <-ctx.Done():
				return
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		f.fail(newError(ErrorKindNetwork, "事件流中断: "+err.Error()))
	}
}
