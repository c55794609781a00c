package client_test

import (
	"testing"

	"ratemall/client"
)

func TestNotifierQueueOrderAndOverflow(t *testing.T) {
	n := client.NewNotifier(2)
	n.Push(client.NoticeInfo, "一")
	n.Push(client.NoticeSuccess, "二")
	n.Push(client.NoticeError, "三") // 挤掉最旧的一条

	first, ok := n.Next()
	if !ok || first.Message != "二" {
		t.Fatalf("应先弹出最早保留的一条: %+v", first)
	}
	rest := n.Drain()
	if len(rest) != 1 || rest[0].Kind != client.NoticeError {
		t.Fatalf("Drain 结果不对: %+v", rest)
	}
	if _, ok := n.Next(); ok {
		t.Fatalf("队列应已空")
	}
}
