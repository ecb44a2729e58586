package model

import "time"

// ControlMode determines who may issue player actions in a room.
type ControlMode string

const (
	ControlModeHostOnly      ControlMode = "HOST_ONLY"
	ControlModeCollaborative ControlMode = "COLLABORATIVE"
)

// PlaybackMode determines how the next playlist item is picked.
type PlaybackMode string

const (
	PlaybackModeSequential PlaybackMode = "SEQUENTIAL"
	PlaybackModeShuffle    PlaybackMode = "SHUFFLE"
)

// Room is the shared playback timeline (GORM).
type Room struct {
	ID                 string       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Code               string       `gorm:"size:8;not null;uniqueIndex"`
	Name               string       `gorm:"size:100;not null"`
	ControlMode        ControlMode  `gorm:"size:20;not null;default:COLLABORATIVE"`
	PlaybackMode       PlaybackMode `gorm:"size:20;not null;default:SEQUENTIAL"`
	HostConnectionID   *string      `gorm:"size:64"`
	CurrentVideoURL    *string      `gorm:"size:512"`
	CurrentTimeSeconds float64      `gorm:"not null;default:0"`
	IsPlaying          bool         `gorm:"not null;default:false"`
	StateUpdatedAt     *time.Time   // nil until the first playback mutation
	OwnerID            *string      `gorm:"type:uuid;index"`
	IsPermanent        bool         `gorm:"not null;default:false"`
	CreatedAt          time.Time    `gorm:"autoCreateTime"`
	ExpiresAt          *time.Time   // nil for permanent rooms
}

func (Room) TableName() string { return "rooms" }

// Participant ties a live WebSocket connection to a room (GORM).
type Participant struct {
	ID           string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RoomID       string    `gorm:"type:uuid;not null;index"`
	ConnectionID string    `gorm:"size:64;not null;uniqueIndex"`
	Nickname     string    `gorm:"size:50;not null"`
	IsHost       bool      `gorm:"not null;default:false"`
	UserID       *string   `gorm:"type:uuid"` // set only for authenticated joiners
	JoinedAt     time.Time `gorm:"not null"`
}

func (Participant) TableName() string { return "participants" }

// ReactionMap counts reactions per emoji, stored as JSONB.
type ReactionMap map[string]int

// ChatMessage is a sanitized chat line with its reactions (GORM).
type ChatMessage struct {
	ID        string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RoomID    string      `gorm:"type:uuid;not null;index:idx_chat_room_sent"`
	Nickname  string      `gorm:"size:50;not null"`
	Content   string      `gorm:"size:500;not null"`
	Reactions ReactionMap `gorm:"type:jsonb;serializer:json"`
	SentAt    time.Time   `gorm:"autoCreateTime;index:idx_chat_room_sent"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

// PlaylistItem is a queued video; Position is 1-based within the room (GORM).
type PlaylistItem struct {
	ID              string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RoomID          string    `gorm:"type:uuid;not null;index:idx_playlist_room_position"`
	VideoURL        string    `gorm:"size:512;not null"`
	Title           string    `gorm:"size:200"`
	ThumbnailURL    string    `gorm:"size:512"`
	DurationSeconds int       `gorm:"not null;default:0"`
	AddedBy         string    `gorm:"size:50;not null"`
	Position        int       `gorm:"not null;index:idx_playlist_room_position"`
	AddedAt         time.Time `gorm:"autoCreateTime"`
}

func (PlaylistItem) TableName() string { return "playlist_items" }

// User is the identity-resolver view of an account: the room engine only ever
// reads the display name of an authenticated joiner. Credential issuance and
// verification happen elsewhere.
type User struct {
	ID          string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	DisplayName string    `gorm:"size:50;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (User) TableName() string { return "users" }
