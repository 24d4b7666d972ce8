package models

import "encoding/json"

// Post is an announcement stored as one JSON document per identifier.
type Post struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Department     string          `json:"department"`
	Author         string          `json:"author"`
	Views          int             `json:"views"`
	PostDate       string          `json:"postDate"`
	EndDate        *string         `json:"endDate"`
	Category       string          `json:"category"`
	Badges         []string        `json:"badges"`
	Content        string          `json:"content"`
	Attachments    []Attachment    `json:"attachments"`
	UploadedImages []UploadedImage `json:"uploadedImages"`
}

// Attachment is a generic file linked to a post.
type Attachment struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Size             string `json:"size"`
	DownloadURL      string `json:"downloadUrl"`
	OriginalFilename string `json:"originalFilename,omitempty"`
}

// UploadedImage is an image stored for a post and embedded into its content.
type UploadedImage struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	URL              string `json:"url"`
	OriginalFilename string `json:"originalFilename,omitempty"`
}

// CreatePostResponse is returned by post creation.
type CreatePostResponse struct {
	Post
	Message string `json:"message,omitempty"`
}

// Normalize replaces nil collections with empty ones so documents always carry arrays.
func (p *Post) Normalize() {
	if p.Badges == nil {
		p.Badges = []string{}
	}
	if p.Attachments == nil {
		p.Attachments = []Attachment{}
	}
	if p.UploadedImages == nil {
		p.UploadedImages = []UploadedImage{}
	}
}

type postAlias Post

// UnmarshalJSON accepts the snake_case field names written by earlier revisions.
func (p *Post) UnmarshalJSON(data []byte) error {
	var doc struct {
		postAlias
		LegacyImages []UploadedImage `json:"uploaded_images"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*p = Post(doc.postAlias)
	if p.UploadedImages == nil {
		p.UploadedImages = doc.LegacyImages
	}
	p.Normalize()
	return nil
}

type attachmentAlias Attachment

func (a *Attachment) UnmarshalJSON(data []byte) error {
	var doc struct {
		attachmentAlias
		LegacyOriginal string `json:"original_filename"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*a = Attachment(doc.attachmentAlias)
	if a.OriginalFilename == "" {
		a.OriginalFilename = doc.LegacyOriginal
	}
	return nil
}

type uploadedImageAlias UploadedImage

func (u *UploadedImage) UnmarshalJSON(data []byte) error {
	var doc struct {
		uploadedImageAlias
		LegacyOriginal string `json:"original_filename"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*u = UploadedImage(doc.uploadedImageAlias)
	if u.OriginalFilename == "" {
		u.OriginalFilename = doc.LegacyOriginal
	}
	return nil
}
