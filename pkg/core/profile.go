// pkg/core/profile.go
package core

// Team is a named group of users.
type Team struct {
	ID   TeamID
	Name string
}

// UserProfile is the public profile of a user.
type UserProfile struct {
	ID        string
	UserName  string
	TeamID    TeamID
	AvatarURL string
}

// Profile is the full payload of the identity endpoint.
type Profile struct {
	Team        *Team
	User        UserProfile
	TeamMembers []UserProfile
}
