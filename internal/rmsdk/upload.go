package rmsdk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/imroc/req/v3"

	"github.com/remsync/remsync/internal/utils"
)

const uploadPath = "/upload"

// Upload sends one document as a multipart form. The device expects the
// form field to be named "file" and stores the document in the collection
// visited last (see Navigate).
func (c *Client) Upload(ctx context.Context, params *UploadParams) error {
	if params == nil || params.FilePath == "" {
		return ErrFileNotFound
	}
	if !utils.FileExists(params.FilePath) {
		return fmt.Errorf("%w: %s", ErrFileNotFound, params.FilePath)
	}

	info, err := os.Stat(params.FilePath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	name := params.UploadName
	if name == "" {
		name = filepath.Base(params.FilePath)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	r := c.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetFileUpload(req.FileUpload{
			ParamName:   "file",
			FileName:    name,
			ContentType: utils.DetectContentType(name),
			FileSize:    info.Size(),
			GetFileContent: func() (io.ReadCloser, error) {
				return os.Open(params.FilePath)
			},
		})

	if params.Callback != nil {
		r.SetUploadCallbackWithInterval(func(info req.UploadInfo) {
			params.Callback(info.UploadedSize, info.FileSize)
		}, time.Second)
	}

	resp, err := r.Post(uploadPath)
	return handleDeviceError(resp, err, "upload "+name)
}
