package chat

import "time"

// Message is one chat turn; both the human and the coach produce one per
// exchange. IsImportant and AgentType start null and are patched in
// place after the background classification completes.
type Message struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID    uint64    `gorm:"not null;index:idx_chat_msg_pair,priority:1" json:"sender_id"`
	ReceiverID  uint64    `gorm:"not null;index:idx_chat_msg_pair,priority:2" json:"receiver_id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	IsImportant *bool     `json:"is_important"`
	AgentType   *string   `gorm:"type:varchar(16);index" json:"agent_type"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
