package feed

import (
	"time"

	"github.com/florianilch/photofeed/internal/photoapi"
)

// Photo is one feed entry. Only Liked changes after the photo is loaded.
// CreatedAt is the zero time when the API omits or mangles the timestamp.
type Photo struct {
	ID          string
	Width       int
	Height      int
	CreatedAt   time.Time
	Description string
	ThumbURL    string
	FullURL     string
	Liked       bool
}

// AspectRatio returns height divided by width, or 0 for a photo without dimensions.
func (p Photo) AspectRatio() float64 {
	if p.Width <= 0 {
		return 0
	}
	return float64(p.Height) / float64(p.Width)
}

func photoFromResult(r photoapi.PhotoResult) Photo {
	p := Photo{
		ID:       r.ID,
		Width:    r.Width,
		Height:   r.Height,
		ThumbURL: r.URLs.Thumb,
		FullURL:  r.URLs.Full,
		Liked:    r.LikedByUser,
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		p.CreatedAt = t
	}
	return p
}
