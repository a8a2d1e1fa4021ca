package protocol

// SavePhotoRequest is the body of POST /api/save_photo.
type SavePhotoRequest struct {
	Photo string `json:"photo"`
}

// SavePhotoResponse reports the reference of a stored photo or why it was refused.
type SavePhotoResponse struct {
	Success  bool   `json:"success"`
	PhotoURL string `json:"photo_url,omitempty"`
	Error    string `json:"error,omitempty"`
}
