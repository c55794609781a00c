package client

import "sync"

const (
	NoticeSuccess = "success"
	NoticeError   = "error"
	NoticeInfo    = "info"
)

type Notice struct {
	Kind    string
	Message string
}

// Notifier 是非阻塞的通知队列，替代 alert 式的阻塞弹窗：
// 生产方 Push 后立即返回，展示方按需 Next/Drain。
type Notifier struct {
	mu    sync.Mutex
	queue []Notice
	max   int
}

func NewNotifier(max int) *Notifier {
	if max <= 0 {
		max = 100
	}
	return &Notifier{max: max}
}

func (n *Notifier) Push(kind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) >= n.max {
		// 队列满时丢最旧的一条。
		n.queue = n.queue[1:]
	}
	n.queue = append(n.queue, Notice{Kind: kind, Message: message})
}

// Next 弹出最早的一条通知；队列空时 ok=false。
func (n *Notifier) Next() (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return Notice{}, false
	}
	out := n.queue[0]
	n.queue = n.queue[1:]
	return out, true
}

// Drain 取走当前全部通知。
func (n *Notifier) Drain() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.queue
	n.queue = nil
	return out
}

func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}
