package uploads

import "errors"

var (
	ErrNotFound           = errors.New("upload not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnsupportedType    = errors.New("unsupported content type")
	ErrTooLarge           = errors.New("file too large")
	ErrDuplicateKey       = errors.New("storage key already registered")
	ErrPresignUnavailable = errors.New("presigned uploads require the s3 object store")
)
