package models

import "time"

const (
	MediaTypeText  = "text"
	MediaTypeImage = "image"
)

// Message is a direct message. ID is the store-assigned insertion sequence and
// the only ordering key; CreatedAt is informational and stamped by the store.
type Message struct {
	ID         uint          `json:"_id" gorm:"primaryKey;autoIncrement"`
	FromUserID string        `json:"from_user_id" gorm:"size:128;index"`
	ToUserID   string        `json:"to_user_id" gorm:"size:128;index:idx_to_seen"`
	PairKey    string        `json:"-" gorm:"size:260;index"`
	Text       string        `json:"text"`
	MediaType  string        `json:"message_type" gorm:"size:10;default:'text'"`
	MediaURL   string        `json:"media_url"`
	Seen       bool          `json:"seen" gorm:"not null;default:false;index:idx_to_seen"`
	ReplyToID  *uint         `json:"replyToId,omitempty" gorm:"index"`
	ReplyTo    *ReplyPreview `json:"replyTo,omitempty" gorm:"-"`
	CreatedAt  time.Time     `json:"createdAt" gorm:"autoCreateTime"`
}

// ReplyPreview is the resolved snapshot of the message a reply points to.
// Unavailable is set when the original was deleted.
type ReplyPreview struct {
	ID          uint      `json:"_id"`
	FromUserID  string    `json:"from_user_id,omitempty"`
	Text        string    `json:"text,omitempty"`
	MediaType   string    `json:"message_type,omitempty"`
	MediaURL    string    `json:"media_url,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	Unavailable bool      `json:"unavailable,omitempty"`
}

// ReplyUnavailableText is shown in place of a deleted original
const ReplyUnavailableText = "Original message unavailable"

// Preview snapshots m for embedding as a reply target
func (m *Message) Preview() *ReplyPreview {
	return &ReplyPreview{
		ID:         m.ID,
		FromUserID: m.FromUserID,
		Text:       m.Text,
		MediaType:  m.MediaType,
		MediaURL:   m.MediaURL,
		CreatedAt:  m.CreatedAt,
	}
}

// UnavailablePreview stands in for a reply target that no longer exists
func UnavailablePreview(id uint) *ReplyPreview {
	return &ReplyPreview{ID: id, Text: ReplyUnavailableText, Unavailable: true}
}

// UnreadCount is the number of unseen messages from PeerID to the viewer
type UnreadCount struct {
	PeerID string `json:"peerId"`
	Count  int64  `json:"count"`
}

// RecentMessage is the latest message exchanged with a peer
type RecentMessage struct {
	Peer        UserSummary `json:"peer"`
	Message     Message     `json:"message"`
	UnreadCount int64       `json:"unreadCount"`
}

// SendMessageRequest is the multipart/JSON body of a send
type SendMessageRequest struct {
	ToUserID string `json:"to_user_id" form:"to_user_id" validate:"required"`
	Text     string `json:"text" form:"text" validate:"max=5000"`
	ReplyTo  uint   `json:"replyTo" form:"replyTo"` // zero when not a reply
}

// DeleteMessageRequest is the body of a delete
type DeleteMessageRequest struct {
	ID uint `json:"id" form:"id" validate:"required"`
}
