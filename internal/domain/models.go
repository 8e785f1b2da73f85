// Package domain defines the persistence models for users, conversations,
// messages, uploaded files, and payments. These types are mapped with GORM
// and form the core data layer of the assistant backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Payment methods accepted by the simulated wallet flow.
const (
	PaymentMethodDana  = "dana"
	PaymentMethodGopay = "gopay"
)

// Payment lifecycle states. Pending and Processing are transient;
// Completed and Failed are terminal.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
)

// User represents an account. The usage counter only matters while the user
// is on the free tier; once IsPremium is set the gate stops consulting it.
//
// Fields:
//   - ID: opaque identity key (provided by the auth layer, e.g. "user123").
//   - Email / FirstName / LastName / ProfileImageURL: optional profile data.
//   - IsPremium: entitlement flag unlocking unlimited usage. Monotonic: the
//     application only ever flips it false → true.
//   - UsageCount: number of metered actions consumed on the free tier.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID              string    `json:"id"                gorm:"type:varchar(64);primaryKey"`
	Email           string    `json:"email,omitempty"   gorm:"type:varchar(255);index"`
	FirstName       string    `json:"first_name,omitempty" gorm:"type:varchar(128)"`
	LastName        string    `json:"last_name,omitempty"  gorm:"type:varchar(128)"`
	ProfileImageURL string    `json:"profile_image_url,omitempty" gorm:"type:text"`
	IsPremium       bool      `json:"is_premium"        gorm:"not null;default:false"`
	UsageCount      int       `json:"usage_count"       gorm:"not null;default:0;check:usage_count >= 0"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Conversation represents a chat thread owned by a user. Messages are an
// append-only log keyed by conversation id.
type Conversation struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_convs"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null;default:'New Chat'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message represents a single utterance within a conversation, authored
// either by the "user" or the "assistant". User messages may reference an
// uploaded file, in which case the assistant reply is a file analysis.
type Message struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Role           string         `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content        string         `json:"content"         gorm:"type:text;not null"`
	FileURL        string         `json:"file_url,omitempty"  gorm:"type:text"`
	FileName       string         `json:"file_name,omitempty" gorm:"type:text"`
	FileType       string         `json:"file_type,omitempty" gorm:"type:varchar(128)"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"          gorm:"index"`

	// Conversation is the parent thread. Messages are cascade-deleted when
	// their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Payment records a single purchase attempt through one of the supported
// wallet providers. Status starts at pending and is advanced by the payment
// service: transient states are derived from elapsed time and never stored,
// terminal states are persisted exactly once.
//
// Amount is an integral number of rupiah (e.g. 25000), never a float.
type Payment struct {
	ID            uint      `json:"id"             gorm:"primaryKey;autoIncrement"`
	UserID        string    `json:"user_id"        gorm:"type:varchar(64);not null;index"`
	Amount        int       `json:"amount"         gorm:"not null;check:amount > 0"`
	Method        string    `json:"payment_method" gorm:"column:payment_method;type:varchar(16);not null;check:payment_method IN ('dana','gopay')"`
	Status        string    `json:"payment_status" gorm:"column:payment_status;type:varchar(16);not null;default:'pending';check:payment_status IN ('pending','processing','completed','failed')"`
	TransactionID string    `json:"transaction_id,omitempty" gorm:"type:varchar(128)"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for Payment.
func (Payment) TableName() string { return "payments" }

// Terminal reports whether the payment status admits no further transitions.
func (p *Payment) Terminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}

// UploadedFile records a file stored by the upload endpoint. The stored name
// is a random disk name; OriginalName preserves what the client sent.
type UploadedFile struct {
	ID           uint      `json:"id"            gorm:"primaryKey;autoIncrement"`
	UserID       string    `json:"user_id"       gorm:"type:varchar(64);not null;index"`
	FileName     string    `json:"file_name"     gorm:"type:text;not null"`
	OriginalName string    `json:"original_name" gorm:"type:text;not null"`
	FileType     string    `json:"file_type"     gorm:"type:varchar(128);not null"`
	FileSize     int64     `json:"file_size"     gorm:"not null"`
	FilePath     string    `json:"file_path"     gorm:"type:text;not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for UploadedFile.
func (UploadedFile) TableName() string { return "uploaded_files" }

// ValidPaymentMethod reports whether m names a supported wallet provider.
func ValidPaymentMethod(m string) bool {
	return m == PaymentMethodDana || m == PaymentMethodGopay
}
