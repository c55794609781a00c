package client

import "github.com/tidwall/gjson"

// 各实体的客户端视图，字段与服务端响应一一对应；
// 解码函数供 Collection 按实体实例化使用。

type User struct {
	ID           int64
	Email        string
	Username     string
	Role         string
	Plan         string
	Status       int
	ReferralCode string
}

func DecodeUser(doc gjson.Result) User {
	return User{
		ID:           doc.Get("id").Int(),
		Email:        doc.Get("email").String(),
		Username:     doc.Get("username").String(),
		Role:         doc.Get("role").String(),
		Plan:         doc.Get("plan").String(),
		Status:       int(doc.Get("status").Int()),
		ReferralCode: doc.Get("referral_code").String(),
	}
}

func (u User) EntityID() int64 { return u.ID }

type Product struct {
	ID              int64
	Name            string
	Description     string
	IncomePerRating string
	Plan            string
	IsLucky         bool
	ImageURL        string
	Rating          string
	RatedCount      int64
	Status          int
}

func DecodeProduct(doc gjson.Result) Product {
	return Product{
		ID:              doc.Get("id").Int(),
		Name:            doc.Get("name").String(),
		Description:     doc.Get("description").String(),
		IncomePerRating: doc.Get("income_per_rating").String(),
		Plan:            doc.Get("plan").String(),
		IsLucky:         doc.Get("is_lucky").Bool(),
		ImageURL:        doc.Get("image_url").String(),
		Rating:          doc.Get("rating_avg").String(),
		RatedCount:      doc.Get("rated_count").Int(),
		Status:          int(doc.Get("status").Int()),
	}
}

func (p Product) EntityID() int64 { return p.ID }

type FundPayment struct {
	ID          int64
	UserID      int64
	Amount      string
	Method      string
	ProofURL    string
	Status      int
	RequestedAt string
}

func DecodeFundPayment(doc gjson.Result) FundPayment {
	return FundPayment{
		ID:          doc.Get("id").Int(),
		UserID:      doc.Get("user_id").Int(),
		Amount:      doc.Get("amount").String(),
		Method:      doc.Get("method").String(),
		ProofURL:    doc.Get("proof_url").String(),
		Status:      int(doc.Get("status").Int()),
		RequestedAt: doc.Get("requested_at").String(),
	}
}

func (f FundPayment) EntityID() int64 { return f.ID }

type PayoutRequest struct {
	ID          int64
	UserID      int64
	Amount      string
	Method      string
	Detail      string
	Status      int
	RequestedAt string
}

func DecodePayoutRequest(doc gjson.Result) PayoutRequest {
	return PayoutRequest{
		ID:          doc.Get("id").Int(),
		UserID:      doc.Get("user_id").Int(),
		Amount:      doc.Get("amount").String(),
		Method:      doc.Get("method").String(),
		Detail:      doc.Get("detail").Raw,
		Status:      int(doc.Get("status").Int()),
		RequestedAt: doc.Get("requested_at").String(),
	}
}

func (p PayoutRequest) EntityID() int64 { return p.ID }

type Ticket struct {
	ID            int64
	UserID        int64
	Subject       string
	Status        int
	Unread        int
	LastMessageAt string
}

func DecodeTicket(doc gjson.Result) Ticket {
	return Ticket{
		ID:            doc.Get("id").Int(),
		UserID:        doc.Get("user_id").Int(),
		Subject:       doc.Get("subject").String(),
		Status:        int(doc.Get("status").Int()),
		Unread:        int(doc.Get("unread").Int()),
		LastMessageAt: doc.Get("last_message_at").String(),
	}
}

func (t Ticket) EntityID() int64 { return t.ID }

type TicketAttachment struct {
	ID           int64
	OriginalName string
	SizeBytes    int64
	URL          string
}

type TicketMessage struct {
	ID          int64
	TicketID    int64
	IsAdmin     bool
	Message     string
	CreatedAt   string
	Attachments []TicketAttachment
}

func DecodeTicketMessage(doc gjson.Result) TicketMessage {
	m := TicketMessage{
		ID:        doc.Get("id").Int(),
		TicketID:  doc.Get("ticket_id").Int(),
		IsAdmin:   doc.Get("is_admin").Bool(),
		Message:   doc.Get("message").String(),
		CreatedAt: doc.Get("created_at").String(),
	}
	doc.Get("attachments").ForEach(func(_, a gjson.Result) bool {
		m.Attachments = append(m.Attachments, TicketAttachment{
			ID:           a.Get("id").Int(),
			OriginalName: a.Get("original_name").String(),
			SizeBytes:    a.Get("size_bytes").Int(),
			URL:          a.Get("url").String(),
		})
		return true
	})
	return m
}

type Ad struct {
	ID          int64
	UserID      int64
	Title       string
	Description string
	ImageURL    string
	Status      int
	Views       int64
}

func DecodeAd(doc gjson.Result) Ad {
	return Ad{
		ID:          doc.Get("id").Int(),
		UserID:      doc.Get("user_id").Int(),
		Title:       doc.Get("title").String(),
		Description: doc.Get("description").String(),
		ImageURL:    doc.Get("image_url").String(),
		Status:      int(doc.Get("status").Int()),
		Views:       doc.Get("views").Int(),
	}
}

func (a Ad) EntityID() int64 { return a.ID }

type RatingEntry struct {
	ID        int64
	ProductID int64
	Rating    int
	Comment   string
	Earning   string
	CreatedAt string
}

func DecodeRatingEntry(doc gjson.Result) RatingEntry {
	return RatingEntry{
		ID:        doc.Get("id").Int(),
		ProductID: doc.Get("product_id").Int(),
		Rating:    int(doc.Get("rating").Int()),
		Comment:   doc.Get("comment").String(),
		Earning:   doc.Get("earning").String(),
		CreatedAt: doc.Get("created_at").String(),
	}
}

func (r RatingEntry) EntityID() int64 { return r.ID }
