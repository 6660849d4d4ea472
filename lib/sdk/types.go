package sdk

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"

	"github.com/thompsy/go-cx-client/lib"
)

// Response is embedded in every SDK response.
type Response struct {
	IsSuccesfull bool   `xml:"IsSuccesfull"`
	ErrorMessage string `xml:"ErrorMessage"`
}

// Err returns a *lib.ProtocolError for an unsuccessful response, nil otherwise.
func (r Response) Err(op string) error {
	if r.IsSuccesfull {
		return nil
	}
	return &lib.ProtocolError{Op: op, Message: r.ErrorMessage}
}

// CurrentStatus is the status of a code scan as reported by the server.
type CurrentStatus string

const (
	StatusQueued           CurrentStatus = "Queued"
	StatusWorking          CurrentStatus = "Working"
	StatusFinished         CurrentStatus = "Finished"
	StatusFailed           CurrentStatus = "Failed"
	StatusCanceled         CurrentStatus = "Canceled"
	StatusDeleted          CurrentStatus = "Deleted"
	StatusUnknown          CurrentStatus = "Unknown"
	StatusUnzipping        CurrentStatus = "Unzipping"
	StatusWaitingToProcess CurrentStatus = "WaitingToProcess"
)

func (s CurrentStatus) String() string { return string(s) }

// ReportType is the format of a generated scan report.
type ReportType string

const (
	ReportPDF ReportType = "PDF"
	ReportRTF ReportType = "RTF"
	ReportCSV ReportType = "CSV"
	ReportXML ReportType = "XML"
)

// ParseReportType returns the ReportType named s.
func ParseReportType(s string) (ReportType, error) {
	switch t := ReportType(s); t {
	case ReportPDF, ReportRTF, ReportCSV, ReportXML:
		return t, nil
	default:
		return "", fmt.Errorf("unknown report type %q", s)
	}
}

// Credentials are the user name and password sent on login.
type Credentials struct {
	User string `xml:"User"`
	Pass string `xml:"Pass"`
}

// LoginData is the result of a login.
type LoginData struct {
	Response
	SessionID string `xml:"SessionId"`
	FullName  string `xml:"FullName"`
	Email     string `xml:"Email"`
}

// ProjectSettings describe the project a scan belongs to.
type ProjectSettings struct {
	ProjectID           int64  `xml:"projectID"`
	ProjectName         string `xml:"ProjectName"`
	PresetID            int64  `xml:"PresetID"`
	AssociatedGroupID   string `xml:"AssociatedGroupID"`
	ScanConfigurationID int64  `xml:"ScanConfigurationID"`
	Description         string `xml:"Description"`
	IsPublic            bool   `xml:"IsPublic"`
}

// LocalCodeContainer carries zipped sources uploaded with a scan request.
type LocalCodeContainer struct {
	ZippedFile []byte `xml:"-"`
	FileName   string `xml:"FileName"`
}

// MarshalXML encodes the zipped sources as base64 as the service expects.
func (l LocalCodeContainer) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(struct {
		ZippedFile string `xml:"ZippedFile"`
		FileName   string `xml:"FileName"`
	}{base64.StdEncoding.EncodeToString(l.ZippedFile), l.FileName}, start)
}

// SourceFilterPatterns exclude files and folders from a scan.
type SourceFilterPatterns struct {
	ExcludeFilesPatterns   string `xml:"ExcludeFilesPatterns"`
	ExcludeFoldersPatterns string `xml:"ExcludeFoldersPatterns"`
}

// SourceLocal is the only source origin supported by this client.
const SourceLocal = "Local"

// SourceCodeSettings tell the server where the scanned sources come from.
type SourceCodeSettings struct {
	SourceOrigin      string                `xml:"SourceOrigin"`
	PackagedCode      *LocalCodeContainer   `xml:"PackagedCode,omitempty"`
	SourceFilterLists *SourceFilterPatterns `xml:"SourceFilterLists,omitempty"`
}

// CliScanArgs is the body of a scan request.
type CliScanArgs struct {
	PrjSettings                 ProjectSettings    `xml:"PrjSettings"`
	SrcCodeSettings             SourceCodeSettings `xml:"SrcCodeSettings"`
	IsPrivateScan               bool               `xml:"IsPrivateScan"`
	IsIncremental               bool               `xml:"IsIncremental"`
	IgnoreScanWithUnchangedCode bool               `xml:"IgnoreScanWithUnchangedCode"`
	Comment                     string             `xml:"Comment"`
}

// RunID identifies a submitted scan.
type RunID struct {
	Response
	ProjectID int64  `xml:"ProjectID"`
	RunID     string `xml:"RunId"`
}

// ScanStatus is a single status observation of a running scan.
type ScanStatus struct {
	Response
	RunID               string        `xml:"RunId"`
	ProjectID           int64         `xml:"ProjectId"`
	ScanID              int64         `xml:"ScanId"`
	ProjectName         string        `xml:"ProjectName"`
	CurrentStatus       CurrentStatus `xml:"CurrentStatus"`
	QueuePosition       int           `xml:"QueuePosition"`
	StageName           string        `xml:"StageName"`
	StageMessage        string        `xml:"StageMessage"`
	StepMessage         string        `xml:"StepMessage"`
	StepDetails         string        `xml:"StepDetails"`
	CurrentStagePercent int           `xml:"CurrentStagePercent"`
	TotalPercent        int           `xml:"TotalPercent"`
}

// ReportRequest asks the server to generate a report for a finished scan.
type ReportRequest struct {
	ScanID int64      `xml:"ScanID"`
	Type   ReportType `xml:"Type"`
}

// CreateReportResponse identifies a report being generated.
type CreateReportResponse struct {
	Response
	ID int64 `xml:"ID"`
}

// ReportStatus is a single status observation of a report being generated.
type ReportStatus struct {
	Response
	IsReady  bool `xml:"IsReady"`
	IsFailed bool `xml:"IsFailed"`
}

// ScanReport carries the content of a generated report.
type ScanReport struct {
	Response
	ScanResults        string `xml:"ScanResults"`
	ContainsAllResults bool   `xml:"containsAllResults"`
}

// Bytes decodes the base64 report content.
func (r ScanReport) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(r.ScanResults)
	if err != nil {
		return nil, fmt.Errorf("failed to decode report content: %w", err)
	}
	return b, nil
}

// ProjectScannedDisplayData summarises the last scan of a project.
type ProjectScannedDisplayData struct {
	ProjectID             int64  `xml:"ProjectID"`
	ProjectName           string `xml:"ProjectName"`
	LastScanID            int64  `xml:"LastScanID"`
	TotalVulnerabilities  int    `xml:"TotalVulnerabilities"`
	HighVulnerabilities   int    `xml:"HighVulnerabilities"`
	MediumVulnerabilities int    `xml:"MediumVulnerabilities"`
	LowVulnerabilities    int    `xml:"LowVulnerabilities"`
	InfoVulnerabilities   int    `xml:"InfoVulnerabilities"`
	RiskLevelScore        int    `xml:"RiskLevelScore"`
}

// ProjectScannedList lists the scanned projects visible to the session.
type ProjectScannedList struct {
	Response
	Projects []ProjectScannedDisplayData `xml:"ProjectScannedList>ProjectScannedDisplayData"`
}

// Preset is a named set of queries.
type Preset struct {
	ID         int64  `xml:"ID"`
	PresetName string `xml:"PresetName"`
}

// PresetList lists the presets visible to the session.
type PresetList struct {
	Response
	Presets []Preset `xml:"PresetList>Preset"`
}

// Group is a team a project may be associated with.
type Group struct {
	ID        string `xml:"ID"`
	GroupName string `xml:"GroupName"`
}

// GroupList lists the teams associated with the session's user.
type GroupList struct {
	Response
	Groups []Group `xml:"GroupList>Group"`
}
