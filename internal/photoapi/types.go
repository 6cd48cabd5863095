package photoapi

// PhotoResult is a photo as returned by the feed endpoint.
type PhotoResult struct {
	ID          string     `json:"id"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	LikedByUser bool       `json:"liked_by_user"`
	Description *string    `json:"description"`
	URLs        URLsResult `json:"urls"`
}

// URLsResult holds the image variants of a photo.
type URLsResult struct {
	Raw     string `json:"raw"`
	Full    string `json:"full"`
	Regular string `json:"regular"`
	Small   string `json:"small"`
	Thumb   string `json:"thumb"`
}

// ProfileResult is the authenticated user's profile.
type ProfileResult struct {
	Username  string  `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
}

// UserResult is a public user record; only the avatar is decoded.
type UserResult struct {
	ProfileImage ProfileImage `json:"profile_image"`
}

// ProfileImage holds the avatar variants of a user.
type ProfileImage struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
}
