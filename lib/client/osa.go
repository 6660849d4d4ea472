package client

import (
	"context"

	"github.com/thompsy/go-cx-client/lib/rest"
)

// CreateOSAScan logs in to the REST API and submits the given dependency
// digests for analysis in projectID.
func (c *Client) CreateOSAScan(ctx context.Context, projectID int64, files []rest.OSAFile) (rest.CreateOSAScanResponse, error) {
	if _, err := c.osa.Refresh(ctx); err != nil {
		return rest.CreateOSAScanResponse{}, err
	}
	return c.rest.CreateOSAScan(ctx, projectID, files)
}

// RetrieveOSAScanSummaryResults returns the summary of a finished OSA scan.
func (c *Client) RetrieveOSAScanSummaryResults(ctx context.Context, scanID string) (rest.OSASummaryResults, error) {
	if _, err := c.osa.Token(ctx); err != nil {
		return rest.OSASummaryResults{}, err
	}
	return c.rest.GetOSAScanSummaryResults(ctx, scanID)
}

// GetOSALibraries lists the libraries found by an OSA scan.
func (c *Client) GetOSALibraries(ctx context.Context, scanID string) ([]rest.Library, error) {
	if _, err := c.osa.Token(ctx); err != nil {
		return nil, err
	}
	return c.rest.GetOSALibraries(ctx, scanID)
}

// GetOSAVulnerabilities lists the vulnerabilities found by an OSA scan.
func (c *Client) GetOSAVulnerabilities(ctx context.Context, scanID string) ([]rest.CVE, error) {
	if _, err := c.osa.Token(ctx); err != nil {
		return nil, err
	}
	return c.rest.GetOSAVulnerabilities(ctx, scanID)
}
