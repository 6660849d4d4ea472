package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/thompsy/go-cx-client/lib"
	"github.com/thompsy/go-cx-client/lib/sdk"
)

// DefaultPresetName is the preset used when a requested preset is not found.
const DefaultPresetName = "Checkmarx Default"

// LocalScanConfiguration describes a scan of zipped local sources.
type LocalScanConfiguration struct {
	ProjectName string
	Description string

	// GroupID is the id of the team owning the project, see
	// ResolveGroupIDFromTeamPath.
	GroupID string

	// Preset is a preset name resolved by CreateLocalScanResolveFields.
	// PresetID is used as is by CreateLocalScan.
	Preset             string
	PresetID           int64
	FailPresetNotFound bool

	IsPrivate       bool
	IsIncremental   bool
	IgnoreUnchanged bool
	Comment         string

	FileName      string
	ZippedSources []byte

	// Comma separated exclusion patterns. Both empty sends no filter.
	FolderExclusions string
	FileExclusions   string
}

func (conf LocalScanConfiguration) cliScanArgs() sdk.CliScanArgs {
	args := sdk.CliScanArgs{
		PrjSettings: sdk.ProjectSettings{
			ProjectName:       conf.ProjectName,
			Description:       conf.Description,
			PresetID:          conf.PresetID,
			AssociatedGroupID: conf.GroupID,
			IsPublic:          !conf.IsPrivate,
		},
		SrcCodeSettings: sdk.SourceCodeSettings{
			SourceOrigin: sdk.SourceLocal,
			PackagedCode: &sdk.LocalCodeContainer{
				FileName:   conf.FileName,
				ZippedFile: conf.ZippedSources,
			},
		},
		IsPrivateScan:               conf.IsPrivate,
		IsIncremental:               conf.IsIncremental,
		IgnoreScanWithUnchangedCode: conf.IgnoreUnchanged,
		Comment:                     conf.Comment,
	}
	if conf.FolderExclusions != "" || conf.FileExclusions != "" {
		args.SrcCodeSettings.SourceFilterLists = &sdk.SourceFilterPatterns{
			ExcludeFilesPatterns:   conf.FileExclusions,
			ExcludeFoldersPatterns: conf.FolderExclusions,
		}
	}
	return args
}

// CreateScanResponse identifies a submitted code scan.
type CreateScanResponse struct {
	ProjectID int64
	RunID     string
}

// CreateLocalScan submits a scan of the zipped sources in conf.
func (c *Client) CreateLocalScan(ctx context.Context, conf LocalScanConfiguration) (CreateScanResponse, error) {
	token, err := c.sdkToken(ctx)
	if err != nil {
		return CreateScanResponse{}, err
	}

	log.WithField("project", conf.ProjectName).Info("sending scan request")
	resp, err := c.sdk.Scan(ctx, token, conf.cliScanArgs())
	if err != nil {
		return CreateScanResponse{}, fmt.Errorf("failed to perform scan: %w", err)
	}
	if err := resp.Err("failed to perform scan"); err != nil {
		return CreateScanResponse{}, err
	}

	log.WithFields(log.Fields{
		"project_id": resp.ProjectID,
		"run_id":     resp.RunID,
	}).Debug("scan created")
	return CreateScanResponse{ProjectID: resp.ProjectID, RunID: resp.RunID}, nil
}

// CreateLocalScanResolveFields resolves the preset name of conf to its id and
// submits the scan. An unknown preset either fails the request or falls back
// to DefaultPresetName, depending on conf.FailPresetNotFound.
func (c *Client) CreateLocalScanResolveFields(ctx context.Context, conf LocalScanConfiguration) (CreateScanResponse, error) {
	if conf.Preset != "" {
		presets, err := c.presets(ctx)
		if err != nil && !errors.Is(err, lib.ErrNotFound) {
			return CreateScanResponse{}, err
		}
		defaultID := findPreset(presets, DefaultPresetName)

		if strings.EqualFold(strings.TrimSpace(conf.Preset), DefaultPresetName) {
			conf.PresetID = defaultID
		} else {
			conf.PresetID = findPreset(presets, conf.Preset)
			if conf.PresetID == 0 {
				if conf.FailPresetNotFound {
					return CreateScanResponse{}, fmt.Errorf("preset [%s]: %w", conf.Preset, lib.ErrNotFound)
				}
				conf.PresetID = defaultID
				log.Warnf("preset [%s] not found, preset set to default", conf.Preset)
			}
		}
	}
	return c.CreateLocalScan(ctx, conf)
}

// ResolvePresetIDFromName returns the id of the preset named name, ignoring
// case. It returns lib.ErrNotFound if there is no such preset or the preset
// list could not be retrieved.
func (c *Client) ResolvePresetIDFromName(ctx context.Context, name string) (int64, error) {
	presets, err := c.presets(ctx)
	if err != nil {
		return 0, err
	}
	if id := findPreset(presets, name); id != 0 {
		return id, nil
	}
	return 0, fmt.Errorf("preset [%s]: %w", name, lib.ErrNotFound)
}

func (c *Client) presets(ctx context.Context) ([]sdk.Preset, error) {
	token, err := c.sdkToken(ctx)
	if err != nil {
		return nil, err
	}
	list, err := c.sdk.GetPresetList(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve preset list: %w", err)
	}
	if !list.IsSuccesfull {
		log.Warnf("failed to retrieve preset list: %s", list.ErrorMessage)
		return nil, fmt.Errorf("preset list: %w", lib.ErrNotFound)
	}
	return list.Presets, nil
}

func findPreset(presets []sdk.Preset, name string) int64 {
	name = strings.TrimSpace(name)
	for _, p := range presets {
		if strings.EqualFold(name, p.PresetName) {
			return p.ID
		}
	}
	return 0
}

// ResolveGroupIDFromTeamPath returns the id of the team with the given full
// path, ignoring case. It returns lib.ErrNotFound if the user is not
// associated with such a team or the team list could not be retrieved.
func (c *Client) ResolveGroupIDFromTeamPath(ctx context.Context, teamPath string) (string, error) {
	teamPath = strings.TrimSpace(teamPath)
	token, err := c.sdkToken(ctx)
	if err != nil {
		return "", err
	}
	list, err := c.sdk.GetAssociatedGroupsList(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve group list: %w", err)
	}
	if !list.IsSuccesfull {
		log.Warnf("failed to retrieve group list: %s", list.ErrorMessage)
		return "", fmt.Errorf("group list: %w", lib.ErrNotFound)
	}
	for _, g := range list.Groups {
		if strings.EqualFold(teamPath, g.GroupName) {
			return g.ID, nil
		}
	}
	return "", fmt.Errorf("team [%s]: %w", teamPath, lib.ErrNotFound)
}

// RetrieveScanResults returns the summary of the last scan of projectID.
func (c *Client) RetrieveScanResults(ctx context.Context, projectID int64) (sdk.ProjectScannedDisplayData, error) {
	token, err := c.sdkToken(ctx)
	if err != nil {
		return sdk.ProjectScannedDisplayData{}, err
	}
	resp, err := c.sdk.GetProjectScannedDisplayData(ctx, token)
	if err != nil {
		return sdk.ProjectScannedDisplayData{}, fmt.Errorf("failed to get scan data: %w", err)
	}
	if err := resp.Err("failed to get scan data"); err != nil {
		return sdk.ProjectScannedDisplayData{}, err
	}
	for _, p := range resp.Projects {
		if p.ProjectID == projectID {
			return p, nil
		}
	}
	return sdk.ProjectScannedDisplayData{}, fmt.Errorf("no scan data found for project [%d]: %w", projectID, lib.ErrNotFound)
}

// GetScanReport generates a report of the given type for scanID, waits for
// it to be ready and returns its content.
func (c *Client) GetScanReport(ctx context.Context, scanID int64, typ sdk.ReportType) ([]byte, error) {
	token, err := c.sdkToken(ctx)
	if err != nil {
		return nil, err
	}
	created, err := c.sdk.CreateScanReport(ctx, token, scanID, typ)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan report: %w", err)
	}
	if err := created.Err("failed to create scan report"); err != nil {
		log.WithError(err).WithField("scan", scanID).Warn("failed to create scan report")
		return nil, err
	}

	if _, err := c.WaitForReport(ctx, created.ID); err != nil {
		return nil, fmt.Errorf("failed to generate scan report: %w", err)
	}

	token, err = c.sdkToken(ctx)
	if err != nil {
		return nil, err
	}
	report, err := c.sdk.GetScanReport(ctx, token, created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve scan report: %w", err)
	}
	if err := report.Err("failed to retrieve scan report"); err != nil {
		return nil, err
	}
	return report.Bytes()
}
