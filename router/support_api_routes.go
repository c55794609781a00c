package router

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ratemall/internal/store"
	"ratemall/internal/uploads"
)

func setSupportAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/support", requireUser(opts), listOwnTicketsHandler(opts))
	r.POST("/support", requireUser(opts), createTicketHandler(opts))
	r.GET("/support/:id", requireUser(opts), getTicketHandler(opts))
	r.POST("/support/:id/reply", requireUser(opts), replyTicketHandler(opts))
	r.POST("/support/:id/read", requireUser(opts), markTicketReadHandler(opts))
	r.GET("/support/:id/events", requireUser(opts), ticketEventsHandler(opts))
	r.GET("/support/attachment/:id", requireUser(opts), downloadTicketAttachmentHandler(opts))

	r.GET("/support/admin/all", requireAdmin(opts), adminListTicketsHandler(opts))
	r.PATCH("/support/:id/status", requireAdmin(opts), adminUpdateTicketStatusHandler(opts))
	r.DELETE("/support/:id", requireAdmin(opts), adminDeleteTicketHandler(opts))
}

func ticketView(t store.Ticket, unread int) gin.H {
	return gin.H{
		"id":              t.ID,
		"user_id":         t.UserID,
		"subject":         t.Subject,
		"status":          t.Status,
		"last_message_at": t.LastMessageAt,
		"unread":          unread,
		"created_at":      t.CreatedAt,
	}
}

func ticketMessageView(m store.TicketMessage, atts []store.TicketAttachment) gin.H {
	view := gin.H{
		"id":         m.ID,
		"ticket_id":  m.TicketID,
		"is_admin":   m.ActorType == store.TicketActorAdmin,
		"message":    m.Body,
		"created_at": m.CreatedAt,
	}
	if len(atts) > 0 {
		items := make([]gin.H, 0, len(atts))
		for _, a := range atts {
			items = append(items, gin.H{
				"id":            a.ID,
				"original_name": a.OriginalName,
				"size_bytes":    a.SizeBytes,
				"url":           "/api/support/attachment/" + itoa64(a.ID),
			})
		}
		view["attachments"] = items
	}
	return view
}

func itoa64(n int64) string {
	return strconv.FormatInt(n, 10)
}

// ticketActorFor 管理员以 admin 身份参与任何工单，普通用户只能碰自己的。
func ticketActorFor(c *gin.Context, t store.Ticket) (string, bool) {
	userID, _ := userIDFromContext(c)
	if isAdmin(c) {
		return store.TicketActorAdmin, true
	}
	if t.UserID == userID {
		return store.TicketActorUser, true
	}
	return "", false
}

func listOwnTicketsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := userIDFromContext(c)
		tickets, err := opts.Store.ListTicketsByUser(c.Request.Context(), userID, queryInt(c, "limit", 100))
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询工单失败"})
			return
		}
		items := make([]gin.H, 0, len(tickets))
		for _, t := range tickets {
			unread, _ := opts.Store.CountUnreadTicketMessages(c.Request.Context(), t.ID, store.TicketActorUser)
			items = append(items, ticketView(t, unread))
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": items})
	}
}

func createTicketHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := userIDFromContext(c)

		if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": parseUploadError(err)})
			return
		}
		subject := strings.TrimSpace(c.Request.FormValue("subject"))
		body := strings.TrimSpace(c.Request.FormValue("message"))
		if subject == "" || body == "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "主题与内容不能为空"})
			return
		}

		files := c.Request.MultipartForm.File["attachments"]
		attInputs, saved, errMsg := saveAttachments(opts.Uploads, uploads.KindTicket, time.Now(), files)
		if errMsg != "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": errMsg})
			return
		}

		ticketID, err := opts.Store.CreateTicket(c.Request.Context(), store.CreateTicketParams{
			UserID:      userID,
			Subject:     subject,
			Body:        body,
			Attachments: attInputs,
		})
		if err != nil {
			deleteSavedAttachments(opts.Uploads, saved)
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "创建工单失败"})
			return
		}

		t, err := opts.Store.GetTicketByID(c.Request.Context(), ticketID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询工单失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": ticketView(t, 0)})
	}
}

func getTicketHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticketID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		t, err := opts.Store.GetTicketByID(c.Request.Context(), ticketID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "工单不存在"})
			return
		}
		actor, allowed := ticketActorFor(c, t)
		if !allowed {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "工单不存在"})
			return
		}

		afterID := int64(queryInt(c, "after", 0))
		msgs, err := opts.Store.ListTicketMessages(c.Request.Context(), ticketID, afterID, queryInt(c, "limit", 200))
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询工单消息失败"})
			return
		}
		attsByMsg, err := opts.Store.ListTicketAttachmentsByMessage(c.Request.Context(), ticketID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询工单附件失败"})
			return
		}

		views := make([]gin.H, 0, len(msgs))
		for _, m := range msgs {
			views = append(views, ticketMessageView(m, attsByMsg[m.ID]))
		}
		unread, _ := opts.Store.CountUnreadTicketMessages(c.Request.Context(), ticketID, actor)
		data := ticketView(t, unread)
		data["replies"] = views
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": data})
	}
}

func replyTicketHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticketID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		t, err := opts.Store.GetTicketByID(c.Request.Context(), ticketID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "工单不存在"})
			return
		}
		actor, allowed := ticketActorFor(c, t)
		if !allowed {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "工单不存在"})
			return
		}

		if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": parseUploadError(err)})
			return
		}
		body := strings.TrimSpace(c.Request.FormValue("message"))
		files := c.Request.MultipartForm.File["attachments"]
		if body == "" && len(files) == 0 {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "内容不能为空"})
			return
		}

		attInputs, saved, errMsg := saveAttachments(opts.Uploads, uploads.KindTicket, time.Now(), files)
		if errMsg != "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": errMsg})
			return
		}

		userID, _ := userIDFromContext(c)
		messageID, err := opts.Store.ReplyTicket(c.Request.Context(), store.ReplyTicketParams{
			TicketID:    ticketID,
			ActorType:   actor,
			ActorUserID: &userID,
			Body:        body,
			Attachments: attInputs,
		})
		if err != nil {
			deleteSavedAttachments(opts.Uploads, saved)
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "回复失败，请稍后再试"})
			return
		}

		msgs, err := opts.Store.ListTicketMessages(c.Request.Context(), ticketID, messageID-1, 1)
		if err != nil || len(msgs) == 0 {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询回复失败"})
			return
		}
		attsByMsg, _ := opts.Store.ListTicketAttachmentsByMessage(c.Request.Context(), ticketID)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": ticketMessageView(msgs[0], attsByMsg[messageID])})
	}
}

func markTicketReadHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticketID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		t, err := opts.Store.GetTicketByID(c.Request.Context(), ticketID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "工单不存在"})
			return
		}
		actor, allowed := ticketActorFor(c, t)
		if !allowed {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "工单不存在"})
			return
		}
		if err := opts.Store.MarkTicketRead(c.Request.Context(), ticketID, actor); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "更新已读失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": ""})
	}
}

// ticketEventsHandler SSE 增量推送：服务端轮询数据库，把新消息写给长连接。
// 客户端可带 after 指定已见过的最后一条消息 id。
func ticketEventsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticketID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		t, err := opts.Store.GetTicketByID(c.Request.Context(), ticketID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "工单不存在"})
			return
		}
		if _, allowed := ticketActorFor(c, t); !allowed {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "工单不存在"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Flush()

		lastID := int64(queryInt(c, "after", 0))
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		heartbeat := time.NewTicker(15 * time.Second)
		defer heartbeat.Stop()

		ctx := c.Request.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
					return
				}
				c.Writer.Flush()
			case <-ticker.C:
				msgs, err := opts.Store.ListTicketMessages(ctx, ticketID, lastID, 100)
				if err != nil {
					return
				}
				if len(msgs) == 0 {
					continue
				}
				attsByMsg, _ := opts.Store.ListTicketAttachmentsByMessage(ctx, ticketID)
				for _, m := range msgs {
					payload, err := json.Marshal(ticketMessageView(m, attsByMsg[m.ID]))
					if err != nil {
						continue
					}
					if _, err := io.WriteString(c.Writer, "event: message\ndata: "+string(payload)+"\n\n"); err != nil {
						return
					}
					lastID = m.ID
				}
				c.Writer.Flush()
			}
		}
	}
}

func downloadTicketAttachmentHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		attID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		att, err := opts.Store.GetTicketAttachmentByID(c.Request.Context(), attID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "附件不存在"})
			return
		}
		t, err := opts.Store.GetTicketByID(c.Request.Context(), att.TicketID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "附件不存在"})
			return
		}
		if _, allowed := ticketActorFor(c, t); !allowed {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "附件不存在"})
			return
		}

		full, err := opts.Uploads.Resolve(att.StorageRelPath)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "附件不存在"})
			return
		}
		if att.ContentType != nil {
			c.Header("Content-Type", *att.ContentType)
		}
		c.FileAttachment(full, att.OriginalName)
	}
}

func adminListTicketsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var statusPtr *int
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			v := queryInt(c, "status", -1)
			if v >= 0 {
				statusPtr = &v
			}
		}
		tickets, err := opts.Store.ListTickets(c.Request.Context(), statusPtr, queryInt(c, "limit", 100))
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询工单失败"})
			return
		}
		items := make([]gin.H, 0, len(tickets))
		for _, t := range tickets {
			unread, _ := opts.Store.CountUnreadTicketMessages(c.Request.Context(), t.ID, store.TicketActorAdmin)
			items = append(items, ticketView(t, unread))
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": items})
	}
}

type updateTicketStatusRequest struct {
	Status int `json:"status"`
}

func adminUpdateTicketStatusHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticketID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		var req updateTicketStatusRequest
		if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		if req.Status < store.TicketStatusOpen || req.Status > store.TicketStatusResolved {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "未知的工单状态"})
			return
		}
		if err := opts.Store.UpdateTicketStatus(c.Request.Context(), ticketID, req.Status); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "工单不存在"})
			return
		}
		t, err := opts.Store.GetTicketByID(c.Request.Context(), ticketID)
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "查询工单失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "", "data": ticketView(t, 0)})
	}
}

func adminDeleteTicketHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticketID, ok := pathID(c, "id")
		if !ok {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "无效的参数"})
			return
		}
		relPaths, err := opts.Store.DeleteTicket(c.Request.Context(), ticketID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "工单不存在"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": false, "message": "删除工单失败"})
			return
		}
		deleteSavedAttachments(opts.Uploads, relPaths)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "已删除"})
	}
}
