package model

import (
	"time"

	"github.com/google/uuid"
)

type Room struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:255;uniqueIndex;not null"`
	Password  string    `gorm:"size:255"`
	CreatedBy string    `gorm:"size:255;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	Members   []Member  `gorm:"constraint:OnDelete:CASCADE"`
}

type Member struct {
	ID          uint      `gorm:"primaryKey"`
	RoomID      uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_members_room_email;not null"`
	Email       string    `gorm:"size:255;uniqueIndex:idx_members_room_email;not null"`
	DisplayName string    `gorm:"size:255;not null"`
	JoinedAt    time.Time `gorm:"not null"`
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"size:255;not null"`
	Email     string    `gorm:"size:255;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
