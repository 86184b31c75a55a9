package minio

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/italolelis/pdfviewer/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
)

// mapError turns "no such key" responses into filestore.ErrNotFound and wraps the rest.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", msg, filestore.ErrNotFound)
		}

		switch resp.Code {
		case "NoSuchKey", "NoSuchBucket":
			return fmt.Errorf("%s: %w", msg, filestore.ErrNotFound)
		}
	}

	return fmt.Errorf("%s: %w", msg, err)
}
