package models

import "time"

// ReleaseTimeLayout is the display format stored in release_time columns.
const ReleaseTimeLayout = "2006/01/02 15:04:05"

// ReleaseTime formats t the way release_time columns are displayed.
func ReleaseTime(t time.Time) string {
	return t.Local().Format(ReleaseTimeLayout)
}

// Form is the loosely-typed field mapping submitted by the presentation layer.
// A missing key reads as the empty string.
type Form map[string]string

func (f Form) Get(key string) string {
	if f == nil {
		return ""
	}
	return f[key]
}

type Role int

const (
	RoleAdmin   Role = 1
	RoleRegular Role = 2
)

type User struct {
	ID          int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Username    string    `gorm:"uniqueIndex;not null" json:"username"`
	Password    string    `gorm:"not null" json:"-"` // one-way hash, never plaintext
	Sex         string    `json:"sex"`
	Note        string    `json:"note"`
	Role        Role      `gorm:"default:2" json:"role"`
	FollowCount int       `gorm:"default:0" json:"follow_count"` // derived from follows.user_id
	FanCount    int       `gorm:"default:0" json:"fan_count"`    // derived from follows.followed_id
	CreatedTime time.Time `gorm:"index" json:"created_time"`
	ReleaseTime string    `json:"release_time"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type Blog struct {
	ID          int       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int       `gorm:"not null;index" json:"user_id"`
	Title       string    `json:"title"`
	Content     string    `gorm:"type:text" json:"content"`
	ComCount    int       `gorm:"default:0" json:"com_count"` // derived from comments.blog_id
	CreatedTime time.Time `gorm:"index" json:"created_time"`
	ReleaseTime string    `json:"release_time"`
}

type Comment struct {
	ID          int       `gorm:"primaryKey;autoIncrement" json:"id"`
	BlogID      int       `gorm:"not null;index" json:"blog_id"`
	ReplyID     int       `gorm:"default:0;index" json:"reply_id"` // 0 for top-level comments
	SenderName  string    `json:"sender_name"`                     // copied at post time, not a foreign key
	Content     string    `gorm:"type:text" json:"content"`
	CreatedTime time.Time `gorm:"index" json:"created_time"`
	ReleaseTime string    `json:"release_time"`
}

func (c *Comment) IsReply() bool {
	return c.ReplyID != 0
}

type Follow struct {
	ID          int       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int       `gorm:"not null;index" json:"user_id"`     // follower
	FollowedID  int       `gorm:"not null;index" json:"followed_id"` // followee
	CreatedTime time.Time `gorm:"index" json:"created_time"`
	ReleaseTime string    `json:"release_time"`
}

// Session binds an opaque token to a user. Only the database session store uses it.
type Session struct {
	Token       string    `gorm:"primaryKey;size:64" json:"-"`
	UserID      int       `gorm:"not null;index" json:"user_id"`
	CreatedTime time.Time `json:"created_time"`
	ExpiresAt   time.Time `gorm:"index" json:"expires_at"`
}

// All lists every table, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Blog{},
		&Comment{},
		&Follow{},
		&Session{},
	}
}
