package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"streamspace/internal/domain"
)

type RoomResponse struct {
	ID          uuid.UUID        `json:"id"`
	Room        string           `json:"room"`
	CreatedBy   string           `json:"created_by"`
	Members     []MemberResponse `json:"members"`
	MemberCount int              `json:"member_count"`
	Live        bool             `json:"live"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type MemberResponse struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	IsCreator   bool   `json:"is_creator"`
}

// RoomToApi merges the durable record with the live view: the member list
// comes from the roster when the room is live, from the store otherwise.
func RoomToApi(record *domain.RoomRecord, snap domain.RoomSnapshot) *RoomResponse {
	live := snap.Name != ""
	members := record.Members
	creator := record.CreatedBy
	if live {
		members = snap.Members
		creator = snap.Creator.Email
	}

	return &RoomResponse{
		ID:        record.ID,
		Room:      record.Name,
		CreatedBy: record.CreatedBy,
		Members: lo.Map(members, func(m domain.Identity, _ int) MemberResponse {
			return MemberResponse{
				Email:       m.Email,
				DisplayName: m.DisplayName,
				IsCreator:   m.Email == creator,
			}
		}),
		MemberCount: len(members),
		Live:        live,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}
