package uploads

import "time"

// UploadResponse is the outward-facing representation of an upload.
type UploadResponse struct {
	UploadID         string     `json:"uploadId"`
	FileName         string     `json:"fileName"`
	OriginalFileName string     `json:"originalFileName"`
	MimeType         string     `json:"mimeType"`
	SizeBytes        int64      `json:"sizeBytes"`
	UploadType       string     `json:"uploadType"`
	StorageKey       string     `json:"s3Key"`
	Status           string     `json:"status"`
	ErrorCode        string     `json:"errorCode,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	UploadedAt       time.Time  `json:"uploadedAt"`
	ProcessedAt      *time.Time `json:"processedAt,omitempty"`
}

// ToResponse renders an upload for API responses.
func ToResponse(u FileUpload) UploadResponse {
	return UploadResponse{
		UploadID:         u.ID,
		FileName:         u.FileName,
		OriginalFileName: u.OriginalFileName,
		MimeType:         u.MimeType,
		SizeBytes:        u.SizeBytes,
		UploadType:       string(u.UploadType),
		StorageKey:       u.StorageKey,
		Status:           string(u.Status),
		ErrorCode:        u.ErrorCode,
		ErrorMessage:     u.ErrorMessage,
		UploadedAt:       u.CreatedAt,
		ProcessedAt:      u.ProcessedAt,
	}
}

type presignRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	MimeType    string `json:"mimeType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type presignResponse struct {
	UploadURL        string `json:"uploadUrl"`
	S3Key            string `json:"s3Key"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

type createFromS3Request struct {
	S3Key            string `json:"s3Key"`
	OriginalFileName string `json:"originalFileName"`
	ContentType      string `json:"contentType"`
	SizeBytes        int64  `json:"sizeBytes"`
	UploadType       string `json:"uploadType"`
}
