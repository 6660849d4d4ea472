package sdk

import (
	"context"
	"encoding/xml"
)

// loginLCID is the language id sent with every login.
const loginLCID = 1099

type loginRequest struct {
	XMLName     xml.Name    `xml:"http://Checkmarx.com/v7 Login"`
	Credentials Credentials `xml:"applicationCredentials"`
	LCID        int         `xml:"lcid"`
}

type loginResponse struct {
	Result LoginData `xml:"LoginResult"`
}

// Login opens a session for the given credentials.
func (c *Client) Login(ctx context.Context, user, pass string) (LoginData, error) {
	var resp loginResponse
	err := c.call(ctx, "Login", loginRequest{
		Credentials: Credentials{User: user, Pass: pass},
		LCID:        loginLCID,
	}, &resp)
	return resp.Result, err
}

type scanRequest struct {
	XMLName   xml.Name    `xml:"http://Checkmarx.com/v7 Scan"`
	SessionID string      `xml:"sessionId"`
	Args      CliScanArgs `xml:"args"`
}

type scanResponse struct {
	Result RunID `xml:"ScanResult"`
}

// Scan submits a scan of the sources described by args.
func (c *Client) Scan(ctx context.Context, sessionID string, args CliScanArgs) (RunID, error) {
	var resp scanResponse
	err := c.call(ctx, "Scan", scanRequest{SessionID: sessionID, Args: args}, &resp)
	return resp.Result, err
}

type scanStatusRequest struct {
	XMLName   xml.Name `xml:"http://Checkmarx.com/v7 GetStatusOfSingleScan"`
	SessionID string   `xml:"sessionID"`
	RunID     string   `xml:"RunId"`
}

type scanStatusResponse struct {
	Result ScanStatus `xml:"GetStatusOfSingleScanResult"`
}

// GetStatusOfSingleScan returns the current status of the scan runID.
func (c *Client) GetStatusOfSingleScan(ctx context.Context, sessionID, runID string) (ScanStatus, error) {
	var resp scanStatusResponse
	err := c.call(ctx, "GetStatusOfSingleScan", scanStatusRequest{SessionID: sessionID, RunID: runID}, &resp)
	return resp.Result, err
}

type createReportRequest struct {
	XMLName   xml.Name      `xml:"http://Checkmarx.com/v7 CreateScanReport"`
	SessionID string        `xml:"sessionID"`
	Request   ReportRequest `xml:"reportRequest"`
}

type createReportResponse struct {
	Result CreateReportResponse `xml:"CreateScanReportResult"`
}

// CreateScanReport starts the generation of a report of the given type.
func (c *Client) CreateScanReport(ctx context.Context, sessionID string, scanID int64, typ ReportType) (CreateReportResponse, error) {
	var resp createReportResponse
	err := c.call(ctx, "CreateScanReport", createReportRequest{
		SessionID: sessionID,
		Request:   ReportRequest{ScanID: scanID, Type: typ},
	}, &resp)
	return resp.Result, err
}

type reportStatusRequest struct {
	XMLName   xml.Name `xml:"http://Checkmarx.com/v7 GetScanReportStatus"`
	SessionID string   `xml:"SessionID"`
	ReportID  int64    `xml:"ReportID"`
}

type reportStatusResponse struct {
	Result ReportStatus `xml:"GetScanReportStatusResult"`
}

// GetScanReportStatus returns the generation status of a report.
func (c *Client) GetScanReportStatus(ctx context.Context, sessionID string, reportID int64) (ReportStatus, error) {
	var resp reportStatusResponse
	err := c.call(ctx, "GetScanReportStatus", reportStatusRequest{SessionID: sessionID, ReportID: reportID}, &resp)
	return resp.Result, err
}

type scanReportRequest struct {
	XMLName   xml.Name `xml:"http://Checkmarx.com/v7 GetScanReport"`
	SessionID string   `xml:"SessionID"`
	ReportID  int64    `xml:"ReportID"`
}

type scanReportResponse struct {
	Result ScanReport `xml:"GetScanReportResult"`
}

// GetScanReport fetches the content of a generated report.
func (c *Client) GetScanReport(ctx context.Context, sessionID string, reportID int64) (ScanReport, error) {
	var resp scanReportResponse
	err := c.call(ctx, "GetScanReport", scanReportRequest{SessionID: sessionID, ReportID: reportID}, &resp)
	return resp.Result, err
}

type projectDataRequest struct {
	XMLName   xml.Name `xml:"http://Checkmarx.com/v7 GetProjectScannedDisplayData"`
	SessionID string   `xml:"sessionID"`
}

type projectDataResponse struct {
	Result ProjectScannedList `xml:"GetProjectScannedDisplayDataResult"`
}

// GetProjectScannedDisplayData lists the last scan summary of every project.
func (c *Client) GetProjectScannedDisplayData(ctx context.Context, sessionID string) (ProjectScannedList, error) {
	var resp projectDataResponse
	err := c.call(ctx, "GetProjectScannedDisplayData", projectDataRequest{SessionID: sessionID}, &resp)
	return resp.Result, err
}

type presetListRequest struct {
	XMLName   xml.Name `xml:"http://Checkmarx.com/v7 GetPresetList"`
	SessionID string   `xml:"SessionID"`
}

type presetListResponse struct {
	Result PresetList `xml:"GetPresetListResult"`
}

// GetPresetList lists the presets available to the session.
func (c *Client) GetPresetList(ctx context.Context, sessionID string) (PresetList, error) {
	var resp presetListResponse
	err := c.call(ctx, "GetPresetList", presetListRequest{SessionID: sessionID}, &resp)
	return resp.Result, err
}

type groupListRequest struct {
	XMLName   xml.Name `xml:"http://Checkmarx.com/v7 GetAssociatedGroupsList"`
	SessionID string   `xml:"sessionID"`
}

type groupListResponse struct {
	Result GroupList `xml:"GetAssociatedGroupsListResult"`
}

// GetAssociatedGroupsList lists the teams of the session's user.
func (c *Client) GetAssociatedGroupsList(ctx context.Context, sessionID string) (GroupList, error) {
	var resp groupListResponse
	err := c.call(ctx, "GetAssociatedGroupsList", groupListRequest{SessionID: sessionID}, &resp)
	return resp.Result, err
}
