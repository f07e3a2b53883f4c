package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrDocumentNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id.String(), "document")
}

func NewErrFlagNotFound(id uint) *ErrResourceNotFound {
	return NewErrResourceNotFound(fmt.Sprintf("%d", id), "flag")
}

type ErrInvalidRequest struct {
	error
}

func NewErrUnsupportedFileType(contentType string) *ErrInvalidRequest {
	return &ErrInvalidRequest{fmt.Errorf("unsupported file type '%s', accepted: JPEG, PNG, GIF, WebP, PDF", contentType)}
}

func NewErrFileTooLarge(maxBytes int64) *ErrInvalidRequest {
	return &ErrInvalidRequest{fmt.Errorf("file too large (max %d bytes)", maxBytes)}
}

type ErrNotRetryable struct {
	error
}

func NewErrNotRetryable(id uuid.UUID, status string) *ErrNotRetryable {
	return &ErrNotRetryable{fmt.Errorf("document %s is %s, only failed or complete documents can be retried", id, status)}
}
