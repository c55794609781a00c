package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	TicketStatusOpen       = 0
	TicketStatusInProgress = 1
	TicketStatusResolved   = 2
)

const (
	TicketActorUser  = "user"
	TicketActorAdmin = "admin"
)

const ticketColumns = `id, user_id, subject, status, last_message_at, user_last_read_at, admin_last_read_at, created_at, updated_at`

func scanTicket(row interface{ Scan(...any) error }) (Ticket, error) {
	var t Ticket
	var userRead, adminRead sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.Status, &t.LastMessageAt, &userRead, &adminRead, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Ticket{}, err
	}
	if userRead.Valid {
		v := userRead.Time
		t.UserLastReadAt = &v
	}
	if adminRead.Valid {
		v := adminRead.Time
		t.AdminLastReadAt = &v
	}
	return t, nil
}

type NewTicketAttachment struct {
	OriginalName   string
	ContentType    *string
	SizeBytes      int64
	StorageRelPath string
}

type CreateTicketParams struct {
	UserID      int64
	Subject     string
	Body        string
	Attachments []NewTicketAttachment
}

// CreateTicket 建工单并写入首条消息与附件记录，整体一个事务。
func (s *Store) CreateTicket(ctx context.Context, params CreateTicketParams) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开始事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO tickets(user_id, subject, status, last_message_at, user_last_read_at, created_at, updated_at)
VALUES(?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
`, params.UserID, params.Subject, TicketStatusOpen)
	if err != nil {
		return 0, fmt.Errorf("创建工单失败: %w", err)
	}
	ticketID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取工单 id 失败: %w", err)
	}

	if _, err := appendTicketMessage(ctx, tx, ticketID, TicketActorUser, &params.UserID, params.Body, params.Attachments); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return ticketID, nil
}

func appendTicketMessage(ctx context.Context, tx *sql.Tx, ticketID int64, actorType string, actorUserID *int64, body string, attachments []NewTicketAttachment) (int64, error) {
	res, err := tx.ExecContext(ctx, `
INSERT INTO ticket_messages(ticket_id, actor_type, actor_user_id, body, created_at)
VALUES(?, ?, ?, ?, CURRENT_TIMESTAMP)
`, ticketID, actorType, actorUserID, body)
	if err != nil {
		return 0, fmt.Errorf("写入工单消息失败: %w", err)
	}
	messageID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("获取消息 id 失败: %w", err)
	}

	for _, att := range attachments {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO ticket_attachments(ticket_id, message_id, uploader_user_id, original_name, content_type, size_bytes, storage_rel_path, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
`, ticketID, messageID, actorUserID, att.OriginalName, att.ContentType, att.SizeBytes, att.StorageRelPath); err != nil {
			return 0, fmt.Errorf("写入工单附件失败: %w", err)
		}
	}
	return messageID, nil
}

type ReplyTicketParams struct {
	TicketID    int64
	ActorType   string
	ActorUserID *int64
	Body        string
	Attachments []NewTicketAttachment
}

// ReplyTicket 追加回复；管理员回复会把工单推进到处理中，用户回复会把已解决的工单重新打开。
func (s *Store) ReplyTicket(ctx context.Context, params ReplyTicketParams) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开始事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status int
	err = tx.QueryRowContext(ctx, `SELECT status FROM tickets WHERE id=?`+forUpdateClause(s.dialect), params.TicketID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sql.ErrNoRows
		}
		return 0, fmt.Errorf("锁定工单失败: %w", err)
	}

	messageID, err := appendTicketMessage(ctx, tx, params.TicketID, params.ActorType, params.ActorUserID, params.Body, params.Attachments)
	if err != nil {
		return 0, err
	}

	nextStatus := status
	readCol := "user_last_read_at"
	if params.ActorType == TicketActorAdmin {
		readCol = "admin_last_read_at"
		if status == TicketStatusOpen {
			nextStatus = TicketStatusInProgress
		}
	} else if status == TicketStatusResolved {
		nextStatus = TicketStatusOpen
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE tickets
SET status=?, last_message_at=CURRENT_TIMESTAMP, `+readCol+`=CURRENT_TIMESTAMP, updated_at=CURRENT_TIMESTAMP
WHERE id=?
`, nextStatus, params.TicketID); err != nil {
		return 0, fmt.Errorf("更新工单失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return messageID, nil
}

func (s *Store) GetTicketByID(ctx context.Context, ticketID int64) (Ticket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, ticketID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Ticket{}, sql.ErrNoRows
		}
		return Ticket{}, fmt.Errorf("查询工单失败: %w", err)
	}
	return t, nil
}

func (s *Store) ListTicketsByUser(ctx context.Context, userID int64, limit int) ([]Ticket, error) {
	return s.listTickets(ctx, `WHERE user_id=?`, []any{userID}, limit)
}

func (s *Store) ListTickets(ctx context.Context, statusPtr *int, limit int) ([]Ticket, error) {
	if statusPtr != nil {
		return s.listTickets(ctx, `WHERE status=?`, []any{*statusPtr}, limit)
	}
	return s.listTickets(ctx, ``, nil, limit)
}

func (s *Store) listTickets(ctx context.Context, where string, args []any, limit int) ([]Ticket, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + ticketColumns + ` FROM tickets ` + where + ` ORDER BY last_message_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询工单列表失败: %w", err)
	}
	defer rows.Close()

	var out []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描工单失败: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历工单失败: %w", err)
	}
	return out, nil
}

// ListTicketMessages 返回 afterID 之后的消息，便于轮询与 SSE 只取增量。
func (s *Store) ListTicketMessages(ctx context.Context, ticketID int64, afterID int64, limit int) ([]TicketMessage, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, ticket_id, actor_type, actor_user_id, body, created_at
FROM ticket_messages
WHERE ticket_id=? AND id>?
ORDER BY id ASC
LIMIT ?`, ticketID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询工单消息失败: %w", err)
	}
	defer rows.Close()

	var out []TicketMessage
	for rows.Next() {
		var m TicketMessage
		var actorUserID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.TicketID, &m.ActorType, &actorUserID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描工单消息失败: %w", err)
		}
		if actorUserID.Valid && actorUserID.Int64 > 0 {
			v := actorUserID.Int64
			m.ActorUserID = &v
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历工单消息失败: %w", err)
	}
	return out, nil
}

func (s *Store) ListTicketAttachmentsByMessage(ctx context.Context, ticketID int64) (map[int64][]TicketAttachment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, ticket_id, message_id, uploader_user_id, original_name, content_type, size_bytes, storage_rel_path, created_at
FROM ticket_attachments
WHERE ticket_id=?
ORDER BY id ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("查询工单附件失败: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]TicketAttachment)
	for rows.Next() {
		var a TicketAttachment
		var uploader sql.NullInt64
		var contentType sql.NullString
		if err := rows.Scan(&a.ID, &a.TicketID, &a.MessageID, &uploader, &a.OriginalName, &contentType, &a.SizeBytes, &a.StorageRelPath, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描工单附件失败: %w", err)
		}
		if uploader.Valid && uploader.Int64 > 0 {
			v := uploader.Int64
			a.UploaderUserID = &v
		}
		if contentType.Valid && contentType.String != "" {
			v := contentType.String
			a.ContentType = &v
		}
		out[a.MessageID] = append(out[a.MessageID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历工单附件失败: %w", err)
	}
	return out, nil
}

func (s *Store) GetTicketAttachmentByID(ctx context.Context, attachmentID int64) (TicketAttachment, error) {
	var a TicketAttachment
	var uploader sql.NullInt64
	var contentType sql.NullString
	err := s.db.QueryRowContext(ctx, `
SELECT id, ticket_id, message_id, uploader_user_id, original_name, content_type, size_bytes, storage_rel_path, created_at
FROM ticket_attachments
WHERE id=?`, attachmentID).Scan(&a.ID, &a.TicketID, &a.MessageID, &uploader, &a.OriginalName, &contentType, &a.SizeBytes, &a.StorageRelPath, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TicketAttachment{}, sql.ErrNoRows
		}
		return TicketAttachment{}, fmt.Errorf("查询工单附件失败: %w", err)
	}
	if uploader.Valid && uploader.Int64 > 0 {
		v := uploader.Int64
		a.UploaderUserID = &v
	}
	if contentType.Valid && contentType.String != "" {
		v := contentType.String
		a.ContentType = &v
	}
	return a, nil
}

func (s *Store) UpdateTicketStatus(ctx context.Context, ticketID int64, status int) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE tickets
SET status=?, updated_at=CURRENT_TIMESTAMP
WHERE id=?
`, status, ticketID)
	if err != nil {
		return fmt.Errorf("更新工单状态失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkTicketRead 刷新某一侧的已读位点。
func (s *Store) MarkTicketRead(ctx context.Context, ticketID int64, actorType string) error {
	col := "user_last_read_at"
	if actorType == TicketActorAdmin {
		col = "admin_last_read_at"
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE tickets
SET `+col+`=CURRENT_TIMESTAMP, updated_at=CURRENT_TIMESTAMP
WHERE id=?
`, ticketID)
	if err != nil {
		return fmt.Errorf("更新工单已读位点失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteTicket 删除工单及其消息与附件记录，返回附件的相对路径供调用方清理磁盘文件。
func (s *Store) DeleteTicket(ctx context.Context, ticketID int64) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("开始事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT storage_rel_path FROM ticket_attachments WHERE ticket_id=?`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("查询工单附件失败: %w", err)
	}
	var relPaths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("扫描工单附件失败: %w", err)
		}
		relPaths = append(relPaths, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("遍历工单附件失败: %w", err)
	}
	rows.Close()

	res, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE id=?`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("删除工单失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ticket_messages WHERE ticket_id=?`, ticketID); err != nil {
		return nil, fmt.Errorf("删除工单消息失败: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ticket_attachments WHERE ticket_id=?`, ticketID); err != nil {
		return nil, fmt.Errorf("删除工单附件失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("提交事务失败: %w", err)
	}
	return relPaths, nil
}

// CountUnreadTicketMessages 统计已读位点之后、由对方发出的消息数。
func (s *Store) CountUnreadTicketMessages(ctx context.Context, ticketID int64, actorType string) (int, error) {
	readCol := "user_last_read_at"
	otherActor := TicketActorAdmin
	if actorType == TicketActorAdmin {
		readCol = "admin_last_read_at"
		otherActor = TicketActorUser
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1)
FROM ticket_messages m
JOIN tickets t ON t.id=m.ticket_id
WHERE m.ticket_id=? AND m.actor_type=?
  AND (t.`+readCol+` IS NULL OR m.created_at > t.`+readCol+`)
`, ticketID, otherActor).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计未读消息失败: %w", err)
	}
	return n, nil
}
