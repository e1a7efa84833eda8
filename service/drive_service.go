package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveService handles Google Drive API operations
type DriveService struct {
	client *drive.Service
}

var _ DriveServiceInterface = (*DriveService)(nil)

// NewDriveService creates a new DriveService instance
// credentialsPath should be the path to the Service Account JSON file
func NewDriveService(ctx context.Context, credentialsPath string) (*DriveService, error) {
	driveService, err := drive.NewService(ctx, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &DriveService{
		client: driveService,
	}, nil
}

// FindFile returns the id of a non-trashed file with that name in the folder,
// or "" when there is none
func (ds *DriveService) FindFile(ctx context.Context, folderID, name string) (string, error) {
	escaped := strings.ReplaceAll(name, "'", `\'`)
	query := fmt.Sprintf("'%s' in parents and name = '%s' and trashed=false", folderID, escaped)

	pageToken := ""
	for {
		call := ds.client.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name)").
			Context(ctx)

		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		r, err := call.Do()
		if err != nil {
			return "", fmt.Errorf("failed to list files: %w", err)
		}
		for _, f := range r.Files {
			if f.Name == name {
				return f.Id, nil
			}
		}

		pageToken = r.NextPageToken
		if pageToken == "" {
			return "", nil
		}
	}
}

// UploadFile stores content in the folder and returns the new file id
func (ds *DriveService) UploadFile(ctx context.Context, folderID, name, mimeType string, content []byte) (string, error) {
	file := &drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{folderID},
	}
	created, err := ds.client.Files.Create(file).
		Media(bytes.NewReader(content)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	log.WithFields(log.Fields{"name": name, "fileId": created.Id}).Info("☁️  File uploaded to Drive")
	return created.Id, nil
}
