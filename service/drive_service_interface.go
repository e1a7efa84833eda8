package service

import "context"

// DriveServiceInterface defines the contract for Google Drive operations
type DriveServiceInterface interface {
	FindFile(ctx context.Context, folderID, name string) (string, error)
	UploadFile(ctx context.Context, folderID, name, mimeType string, content []byte) (string, error)
}
