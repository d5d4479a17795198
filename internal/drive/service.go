package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/imgsync/internal/storage"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	FolderMimeType      = "application/vnd.google-apps.folder"
	SpreadsheetMimeType = "application/vnd.google-apps.spreadsheet"
	XLSXMimeType        = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	rootID   = "root"
	pageSize = 1000
)

// Service wraps the Drive v3 API for the operations the transfer needs.
type Service struct {
	srv *drive.Service
}

// NewService creates a Drive client on top of an already authorized HTTP
// client. Extra options (for example option.WithEndpoint) are passed through.
func NewService(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("drive: authorized http client is required")
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}

	return &Service{srv: srv}, nil
}

type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
	Size         int64  `json:"size,string,omitempty"`
}

// CreateObject uploads body as a new file under obj.ParentID and returns the
// Drive file id.
func (s *Service) CreateObject(ctx context.Context, obj storage.Object, body io.Reader) (string, error) {
	meta := &drive.File{
		Name:     obj.Name,
		MimeType: obj.ContentType,
	}
	if obj.ParentID != "" {
		meta.Parents = []string{obj.ParentID}
	}

	var mediaOpts []googleapi.MediaOption
	if obj.ContentType != "" {
		mediaOpts = append(mediaOpts, googleapi.ContentType(obj.ContentType))
	}

	created, err := s.srv.Files.Create(meta).
		Media(body, mediaOpts...).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("unable to create %s: %w", obj.Name, err)
	}

	return created.Id, nil
}

// ListFiles returns every non-trashed file directly under folderID, following
// pagination. An empty folderID means the user's root folder.
func (s *Service) ListFiles(ctx context.Context, folderID string) ([]*File, error) {
	var files []*File

	if folderID == "" {
		folderID = rootID
	}

	err := s.srv.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))).
		Fields("nextPageToken, files(id, name, mimeType, modifiedTime, size)").
		PageSize(pageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				files = append(files, &File{
					ID:           f.Id,
					Name:         f.Name,
					MimeType:     f.MimeType,
					ModifiedTime: f.ModifiedTime,
					Size:         f.Size,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve files: %w", err)
	}

	return files, nil
}

// ListObjects adapts ListFiles to the storage.Lister contract.
func (s *Service) ListObjects(ctx context.Context, parentID string) ([]storage.ObjectInfo, error) {
	files, err := s.ListFiles(ctx, parentID)
	if err != nil {
		return nil, err
	}

	out := make([]storage.ObjectInfo, 0, len(files))
	for _, f := range files {
		info := storage.ObjectInfo{
			ID:          f.ID,
			Name:        f.Name,
			ContentType: f.MimeType,
			Size:        f.Size,
		}
		if ts, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			info.ModifiedTime = ts
		}
		out = append(out, info)
	}
	return out, nil
}

// GetFile fetches the metadata of a single file.
func (s *Service) GetFile(ctx context.Context, fileID string) (*File, error) {
	f, err := s.srv.Files.Get(fileID).
		Fields("id, name, mimeType, modifiedTime, size").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get file %s: %w", fileID, err)
	}
	return &File{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		ModifiedTime: f.ModifiedTime,
		Size:         f.Size,
	}, nil
}

// DownloadFile streams the content of fileID into w. Native Google Sheets are
// exported as XLSX.
func (s *Service) DownloadFile(ctx context.Context, f *File, w io.Writer) error {
	var (
		resp *http.Response
		err  error
	)
	if f.MimeType == SpreadsheetMimeType {
		resp, err = s.srv.Files.Export(f.ID, XLSXMimeType).Context(ctx).Download()
	} else {
		resp, err = s.srv.Files.Get(f.ID).SupportsAllDrives(true).Context(ctx).Download()
	}
	if err != nil {
		return fmt.Errorf("unable to download file: %w", err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(w, resp.Body)
	return err
}

// FindFolderByPath walks a slash separated folder path from the root folder
// and returns the id of the last segment.
func (s *Service) FindFolderByPath(ctx context.Context, path string) (string, error) {
	if path == "" {
		return rootID, nil
	}

	folders := strings.Split(path, "/")
	currentID := rootID

	for _, folder := range folders {
		if folder == "" {
			continue
		}

		result, err := s.srv.Files.List().
			Q(fmt.Sprintf("'%s' in parents and name='%s' and mimeType='%s' and trashed=false",
				escapeQuery(currentID), escapeQuery(folder), FolderMimeType)).
			Fields("files(id, name)").
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("error finding folder %s: %w", folder, err)
		}

		if len(result.Files) == 0 {
			return "", fmt.Errorf("folder not found: %s", folder)
		}

		currentID = result.Files[0].Id
	}

	return currentID, nil
}

// escapeQuery escapes a value for use inside a single quoted Drive query literal.
func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

var (
	_ storage.ObjectStorage = (*Service)(nil)
	_ storage.Lister        = (*Service)(nil)
)
