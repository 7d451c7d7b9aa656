package domain

// User is owned by the account service; only Teams is written here.
type User struct {
	ID       string    `bson:"_id" json:"id"`
	Username string    `bson:"username" json:"username"`
	Email    string    `bson:"email" json:"email"`
	Teams    []TeamRef `bson:"teams" json:"teams"`
}

// TeamRef is the user-side mirror of a membership.
type TeamRef struct {
	ID   string `bson:"_id" json:"id"`
	Name string `bson:"name" json:"name"`
	Icon string `bson:"icon,omitempty" json:"icon,omitempty"`
	Role Role   `bson:"role" json:"role"`
}

// TeamRef returns the mirror entry for teamID.
func (u User) TeamRef(teamID string) (TeamRef, bool) {
	for _, r := range u.Teams {
		if r.ID == teamID {
			return r, true
		}
	}
	return TeamRef{}, false
}
