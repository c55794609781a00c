package store_test

import (
	"context"
	"testing"

	"ratemall/internal/store"
)

func TestTicketLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "t1@example.com", "ticket1")
	adminID := createActiveUser(t, st, "t2@example.com", "ticket2")

	ticketID, err := st.CreateTicket(ctx, store.CreateTicketParams{
		UserID:  uid,
		Subject: "充值未到账",
		Body:    "已转账但余额没有变化",
		Attachments: []store.NewTicketAttachment{
			{OriginalName: "proof.png", SizeBytes: 123, StorageRelPath: "tickets/1/proof.png"},
		},
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	tk, err := st.GetTicketByID(ctx, ticketID)
	if err != nil {
		t.Fatalf("GetTicketByID: %v", err)
	}
	if tk.Status != store.TicketStatusOpen {
		t.Fatalf("status = %d; want open", tk.Status)
	}

	msgs, err := st.ListTicketMessages(ctx, ticketID, 0, 0)
	if err != nil {
		t.Fatalf("ListTicketMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ActorType != store.TicketActorUser {
		t.Fatalf("unexpected initial messages: %+v", msgs)
	}
	atts, err := st.ListTicketAttachmentsByMessage(ctx, ticketID)
	if err != nil {
		t.Fatalf("ListTicketAttachmentsByMessage: %v", err)
	}
	if len(atts[msgs[0].ID]) != 1 {
		t.Fatalf("attachment should be linked to first message: %+v", atts)
	}

	// 管理员回复将工单推进到处理中。
	if _, err := st.ReplyTicket(ctx, store.ReplyTicketParams{
		TicketID: ticketID, ActorType: store.TicketActorAdmin, ActorUserID: &adminID, Body: "正在核实",
	}); err != nil {
		t.Fatalf("ReplyTicket(admin): %v", err)
	}
	tk, _ = st.GetTicketByID(ctx, ticketID)
	if tk.Status != store.TicketStatusInProgress {
		t.Fatalf("status after admin reply = %d; want in progress", tk.Status)
	}

	// 增量拉取：afterID 之后只应返回管理员的回复。
	inc, err := st.ListTicketMessages(ctx, ticketID, msgs[0].ID, 0)
	if err != nil {
		t.Fatalf("ListTicketMessages(after): %v", err)
	}
	if len(inc) != 1 || inc[0].ActorType != store.TicketActorAdmin {
		t.Fatalf("unexpected incremental messages: %+v", inc)
	}

	if err := st.UpdateTicketStatus(ctx, ticketID, store.TicketStatusResolved); err != nil {
		t.Fatalf("UpdateTicketStatus: %v", err)
	}
	// 用户再次留言会重新打开工单。
	if _, err := st.ReplyTicket(ctx, store.ReplyTicketParams{
		TicketID: ticketID, ActorType: store.TicketActorUser, ActorUserID: &uid, Body: "还是没到账",
	}); err != nil {
		t.Fatalf("ReplyTicket(user): %v", err)
	}
	tk, _ = st.GetTicketByID(ctx, ticketID)
	if tk.Status != store.TicketStatusOpen {
		t.Fatalf("status after user reply = %d; want open", tk.Status)
	}
}

func TestTicketUnreadCount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid := createActiveUser(t, st, "t3@example.com", "ticket3")
	adminID := createActiveUser(t, st, "t4@example.com", "ticket4")

	ticketID, err := st.CreateTicket(ctx, store.CreateTicketParams{UserID: uid, Subject: "问题", Body: "描述"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}

	// 管理员尚未读过，用户的首条消息算未读。
	n, err := st.CountUnreadTicketMessages(ctx, ticketID, store.TicketActorAdmin)
	if err != nil {
		t.Fatalf("CountUnreadTicketMessages(admin): %v", err)
	}
	if n != 1 {
		t.Fatalf("admin unread = %d; want 1", n)
	}

	if err := st.MarkTicketRead(ctx, ticketID, store.TicketActorAdmin); err != nil {
		t.Fatalf("MarkTicketRead: %v", err)
	}
	n, _ = st.CountUnreadTicketMessages(ctx, ticketID, store.TicketActorAdmin)
	if n != 0 {
		t.Fatalf("admin unread after read = %d; want 0", n)
	}

	if _, err := st.ReplyTicket(ctx, store.ReplyTicketParams{
		TicketID: ticketID, ActorType: store.TicketActorAdmin, ActorUserID: &adminID, Body: "收到",
	}); err != nil {
		t.Fatalf("ReplyTicket: %v", err)
	}
	// 创建工单时写入了用户侧已读位点，管理员回复后用户应看到未读。
	lst, err := st.ListTicketsByUser(ctx, uid, 10)
	if err != nil || len(lst) != 1 {
		t.Fatalf("ListTicketsByUser = %v, %v", lst, err)
	}
}
