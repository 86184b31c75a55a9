package api

import (
	"context"

	"github.com/italolelis/pdfviewer/internal/telemetry"
)

// InstrumentedClient wraps Client with telemetry.
type InstrumentedClient struct {
	client    *Client
	telemetry *telemetry.Telemetry
}

// NewInstrumentedClient creates a new instrumented backend client.
func NewInstrumentedClient(client *Client, tel *telemetry.Telemetry) *InstrumentedClient {
	return &InstrumentedClient{
		client:    client,
		telemetry: tel,
	}
}

// ListFiles lists the backend files with telemetry.
func (c *InstrumentedClient) ListFiles(ctx context.Context) ([]string, error) {
	var result []string

	var err error

	instrumentedErr := c.telemetry.InstrumentClientOperation(ctx, "list_files", func(ctx context.Context) error {
		result, err = c.client.ListFiles(ctx)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

// DownloadFile downloads one file with telemetry.
func (c *InstrumentedClient) DownloadFile(ctx context.Context, name string) (*Blob, error) {
	var result *Blob

	var err error

	instrumentedErr := c.telemetry.InstrumentClientOperation(ctx, "download_file", func(ctx context.Context) error {
		result, err = c.client.DownloadFile(ctx, name)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}
