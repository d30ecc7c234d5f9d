/*
Package user contains the data structures describing a member of the platform.

Users are owned by the backend and are immutable from the client's perspective.
The public Identity projection is what gets presented to the chat and video providers.
*/
package user

import "slices"

// User represents a language-exchange member as returned by the backend.
// Fields use the backend's JSON names.
type User struct {
	// ID is the stable, unique identifier of the user.
	ID string `json:"id"`

	// FullName is the display name.
	FullName string `json:"full_name"`

	// ProfilePic is the URL of the user's avatar.
	ProfilePic string `json:"profile_pic"`

	// Location is optional free text such as a city.
	Location string `json:"location,omitempty"`

	// NativeLanguage and LearningLanguage are language tags.
	NativeLanguage   string `json:"native_lng"`
	LearningLanguage string `json:"learning_lng"`

	Bio string `json:"bio,omitempty"`

	// FriendIDs lists the ids of accepted friends when the backend includes them.
	FriendIDs []string `json:"friend_ids,omitempty"`
}

// Identity is the public identity presented to realtime providers.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Identity returns the provider-facing projection of u.
func (u User) Identity() Identity {
	return Identity{
		ID:    u.ID,
		Name:  u.FullName,
		Image: u.ProfilePic,
	}
}

// IsFriend reports whether id is among u's known friends.
func (u User) IsFriend(id string) bool {
	return slices.Contains(u.FriendIDs, id)
}
