package domain

import "time"

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MaxOwnerLength       = 100
)

// Advert is a row of the advertisements table.
type Advert struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Owner        string    `json:"owner"`
	CreationDate time.Time `json:"creation_date"`
}

// AdvertPatch holds the fields a client may overwrite. Nil means untouched.
type AdvertPatch struct {
	Title       *string
	Description *string
	Owner       *string
}

// Diff returns the patch that turns before into after, holding only the
// mutable fields whose values differ.
func Diff(before, after Advert) AdvertPatch {
	var p AdvertPatch
	if after.Title != before.Title {
		p.Title = &after.Title
	}
	if after.Description != before.Description {
		p.Description = &after.Description
	}
	if after.Owner != before.Owner {
		p.Owner = &after.Owner
	}
	return p
}

func (p AdvertPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Owner == nil
}

// Merge copies the fields set in other over p.
func (p *AdvertPatch) Merge(other AdvertPatch) {
	if other.Title != nil {
		p.Title = other.Title
	}
	if other.Description != nil {
		p.Description = other.Description
	}
	if other.Owner != nil {
		p.Owner = other.Owner
	}
}

// Apply overwrites the fields set in p.
func (p AdvertPatch) Apply(ad *Advert) {
	if p.Title != nil {
		ad.Title = *p.Title
	}
	if p.Description != nil {
		ad.Description = *p.Description
	}
	if p.Owner != nil {
		ad.Owner = *p.Owner
	}
}
