package dto

// AttachmentInput references a file already uploaded through POST /upload.
type AttachmentInput struct {
	URL      string `json:"url" binding:"required,url"`
	FileName string `json:"filename" binding:"required,max=255"`
	MimeType string `json:"mimetype" binding:"required,max=100"`
	Size     int64  `json:"size" binding:"min=0"`
}

type AttachmentResponse struct {
	ID       uint   `json:"id"`
	URL      string `json:"url"`
	FileName string `json:"filename"`
	MimeType string `json:"mimetype"`
	Size     int64  `json:"size"`
}
