package models

import "time"

// User mirrors a profile held by the external identity provider. The local
// row is refreshed from the provider on every authenticated request.
type User struct {
	ID         string
	IdentityID string
	Name       string
	Email      string
	AvatarURL  string
	Bio        string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Story is an authored piece of content with engagement state attached.
// Likes and Bookmarks hold raw identity-provider ids, not local user ids,
// so a toggle never needs an extra lookup.
type Story struct {
	ID           string
	AuthorID     string
	AuthorName   string
	AuthorAvatar string
	Title        string
	Body         string
	Category     string
	ImageURL     string
	AudioURL     string
	VideoURL     string
	Likes        []string
	Bookmarks    []string
	Comments     []Comment
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Comment lives embedded inside its parent story. UserID references the
// local users table; AuthorName is a snapshot taken at write time.
type Comment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	AuthorName string    `json:"authorName"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Progress records how far a user got through a story. One row per
// (user, story) pair, overwritten on every report.
type Progress struct {
	ID        string
	UserID    string
	StoryID   string
	Value     string
	UpdatedAt time.Time
}

// Media folder kinds understood by the uploader.
const (
	MediaFolderImages  = "images"
	MediaFolderAudio   = "audio"
	MediaFolderVideos  = "videos"
	MediaFolderAvatars = "avatars"
)

// UnknownAuthor is the placeholder rendered when a comment references a
// user that no longer exists.
const UnknownAuthor = "Unknown"
