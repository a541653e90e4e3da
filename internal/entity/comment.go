package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CaseType string

const (
	CaseTypePrivate  CaseType = "private"
	CaseTypeBusiness CaseType = "business"
	CaseTypeContract CaseType = "contract"
)

func (t CaseType) Valid() bool {
	switch t {
	case CaseTypePrivate, CaseTypeBusiness, CaseTypeContract:
		return true
	}
	return false
}

// Comment is a single message attached to a case. AuthorName and AuthorRole are a
// snapshot taken at write time; later profile edits never rewrite them.
type Comment struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_comments_case,priority:1" json:"case_id"`
	CaseType CaseType   `gorm:"size:20;not null;index:idx_comments_case,priority:2" json:"case_type"`
	ParentID *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Parent   *Comment   `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE" json:"-"`

	AuthorID   uuid.UUID `gorm:"type:uuid;not null;index" json:"author_id"`
	AuthorName string    `gorm:"size:100;not null" json:"author_name"`
	AuthorRole string    `gorm:"size:50;not null" json:"author_role"`

	Content     string       `gorm:"type:text;not null" json:"content"`
	Attachments []Attachment `gorm:"foreignKey:CommentID;constraint:OnDelete:CASCADE" json:"attachments"`

	// Derived once at create time, never recomputed.
	MentionedUserIDs []uuid.UUID `gorm:"type:text;serializer:json" json:"mentioned_user_ids"`
	MentionedRoles   []string    `gorm:"type:text;serializer:json" json:"mentioned_roles"`
	MentionsAll      bool        `gorm:"not null;default:false" json:"mentions_all"`

	// Root comments only.
	Status     *TicketStatus `gorm:"size:20" json:"status,omitempty"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy *uuid.UUID    `gorm:"type:uuid" json:"resolved_by,omitempty"`

	IsSystemComment bool      `gorm:"not null;default:false" json:"is_system_comment"`
	IsEdited        bool      `gorm:"not null;default:false" json:"is_edited"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID, err = uuid.NewV7()
	}
	return
}

func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}

// Mentions reports whether the comment explicitly mentions userID.
func (c *Comment) Mentions(userID uuid.UUID) bool {
	for _, id := range c.MentionedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// MentionsRole reports whether the comment carries a role tag for role.
func (c *Comment) MentionsRole(role string) bool {
	for _, r := range c.MentionedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// AsRoot returns the comment as a RootComment, or ErrNotRootComment for replies.
func (c *Comment) AsRoot() (RootComment, error) {
	if !c.IsRoot() {
		return RootComment{}, ErrNotRootComment
	}
	return RootComment{c: c}, nil
}

// Attachment belongs to a comment once claimed; uploads start unclaimed.
type Attachment struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	CommentID *uuid.UUID `gorm:"type:uuid;index" json:"comment_id,omitempty"`
	Position  int        `gorm:"not null;default:0" json:"position"`
	FileURL   string     `gorm:"type:text;not null" json:"url"`
	FileName  string     `gorm:"size:255;not null" json:"filename"`
	MimeType  string     `gorm:"size:100;not null" json:"mimetype"`
	Size      int64      `gorm:"not null;default:0" json:"size"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
