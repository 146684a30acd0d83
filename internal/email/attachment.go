package email

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"path/filepath"

	"github.com/spf13/afero"
)

// defaultContentType is used for attachments whose extension has no known
// media type.
const defaultContentType = "application/octet-stream"

// LoadAttachments reads every path fully, in order. If any path is missing
// or is a directory, it returns ErrAttachmentNotFound and no attachments.
func LoadAttachments(fsys afero.Fs, paths []string) ([]Attachment, error) {
	for _, p := range paths {
		info, err := fsys.Stat(p)
		if err != nil || info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrAttachmentNotFound, p)
		}
	}

	attachments := make([]Attachment, 0, len(paths))
	for _, p := range paths {
		content, err := afero.ReadFile(fsys, p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrAttachmentNotFound, p)
			}
			return nil, fmt.Errorf("failed to read attachment %s: %w", p, err)
		}
		attachments = append(attachments, Attachment{
			Filename:    filepath.Base(p),
			ContentType: contentTypeFor(p),
			Content:     content,
		})
	}
	return attachments, nil
}

func contentTypeFor(path string) string {
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		return defaultContentType
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return defaultContentType
	}
	return mediaType
}
