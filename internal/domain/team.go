package domain

import "time"

// Team is a named group whose member list mirrors each member's User.Teams.
type Team struct {
	ID        string      `bson:"_id" json:"id"`
	Name      string      `bson:"name" json:"name"`
	Icon      string      `bson:"icon,omitempty" json:"icon,omitempty"`
	CreatorID string      `bson:"creatorId" json:"creator_id"`
	Members   []MemberRef `bson:"members" json:"members"`
	CreatedAt time.Time   `bson:"createdAt" json:"created_at"`
}

// MemberRef is the team-side snapshot of one member, taken when the member was added.
type MemberRef struct {
	ID       string `bson:"_id" json:"id"`
	Username string `bson:"username" json:"username"`
	Email    string `bson:"email" json:"email"`
	Role     Role   `bson:"role" json:"role"`
}

// Member returns the MemberRef for userID.
func (t Team) Member(userID string) (MemberRef, bool) {
	for _, m := range t.Members {
		if m.ID == userID {
			return m, true
		}
	}
	return MemberRef{}, false
}

// Ref builds the user-side mirror of this team for a member holding role.
func (t Team) Ref(role Role) TeamRef {
	return TeamRef{ID: t.ID, Name: t.Name, Icon: t.Icon, Role: role}
}
