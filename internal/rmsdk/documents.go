package rmsdk

import (
	"context"
)

const documentsPath = "/documents/"

func folderPath(folderID string) string {
	if folderID == RootID {
		return documentsPath
	}
	return documentsPath + folderID
}

// Documents lists the direct children of a collection. RootID lists the
// device root. Order is whatever the device returns; callers must not
// assume any sorting.
func (c *Client) Documents(ctx context.Context, folderID string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	var entries []Entry
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&entries).
		Get(folderPath(folderID))

	if err := handleDeviceError(resp, err, "list documents"); err != nil {
		return nil, err
	}

	return entries, nil
}

// Probe checks whether the device answers at all. It uses a deliberately
// tight deadline so disconnect detection stays snappy.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		Get(documentsPath)

	return handleDeviceError(resp, err, "probe")
}

// Navigate visits a collection without consuming the listing. The device's
// web server is stateful: an upload lands in whichever collection was
// listed last, so callers must navigate to the target folder right before
// uploading into it.
func (c *Client) Navigate(ctx context.Context, folderID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		Get(folderPath(folderID))

	return handleDeviceError(resp, err, "navigate")
}
