package client

import (
	"context"
	"strconv"
)

// TicketThread 是单个工单的完整会话视图。
type TicketThread struct {
	Ticket
	Replies []TicketMessage
}

// CreateTicket 开一个新工单；attachments 可为空。
func (c *Client) CreateTicket(ctx context.Context, subject, message string, attachments []FilePart) (Ticket, error) {
	if subject == "" || message == "" {
		return Ticket{}, newError(ErrorKindValidation, "主题与内容不能为空")
	}
	data, err := c.doMultipart(ctx, "POST", "/api/support", map[string]string{
		"subject": subject,
		"message": message,
	}, attachments)
	if err != nil {
		return Ticket{}, err
	}
	return DecodeTicket(data), nil
}

// FetchTicket 拉取工单及 afterID 之后的消息。
func (c *Client) FetchTicket(ctx context.Context, ticketID, afterID int64) (TicketThread, error) {
	path := "/api/support/" + strconv.FormatInt(ticketID, 10)
	if afterID > 0 {
		path += "?after=" + strconv.FormatInt(afterID, 10)
	}
	data, err := c.doJSON(ctx, "GET", path, nil)
	if err != nil {
		return TicketThread{}, err
	}
	thread := TicketThread{Ticket: DecodeTicket(data)}
	thread.Replies = decodeList(data.Get("replies"), DecodeTicketMessage)
	return thread, nil
}

// ReplyTicket 追加一条回复；message 与 attachments 至少要有一个。
func (c *Client) ReplyTicket(ctx context.Context, ticketID int64, message string, attachments []FilePart) (TicketMessage, error) {
	if message == "" && len(attachments) == 0 {
		return TicketMessage{}, newError(ErrorKindValidation, "内容不能为空")
	}
	data, err := c.doMultipart(ctx, "POST", "/api/support/"+strconv.FormatInt(ticketID, 10)+"/reply", map[string]string{
		"message": message,
	}, attachments)
	if err != nil {
		return TicketMessage{}, err
	}
	return DecodeTicketMessage(data), nil
}

// MarkTicketRead 上报已读位点，未读数从显式的 last_read_at 比较得出。
func (c *Client) MarkTicketRead(ctx context.Context, ticketID int64) error {
	_, err := c.doJSON(ctx, "POST", "/api/support/"+strconv.FormatInt(ticketID, 10)+"/read", struct{}{})
	return err
}
