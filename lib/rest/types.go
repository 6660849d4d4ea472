package rest

// OSA scan state ids as reported by the server.
const (
	StateNotStarted = 0
	StateInProgress = 1
	StateSucceeded  = 2
	StateFailed     = 3
)

// OriginMaven is the origin reported for scans submitted by this client.
const OriginMaven = "Maven"

type loginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// OSAFile is a dependency identified by its file name and SHA-1 digest.
type OSAFile struct {
	Filename string `json:"filename"`
	Sha1     string `json:"sha1"`
}

type createOSAScanRequest struct {
	ProjectID   int64     `json:"projectId"`
	Origin      string    `json:"origin"`
	HashedFiles []OSAFile `json:"hashedFilesList"`
}

// CreateOSAScanResponse identifies a submitted OSA scan.
type CreateOSAScanResponse struct {
	ScanID string `json:"scanId"`
}

// State is the lifecycle state of an OSA scan.
type State struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	FailureReason string `json:"failureReason"`
}

// OSAScanStatus is a single status observation of an OSA scan.
type OSAScanStatus struct {
	ID               string `json:"id"`
	StartAnalyzeTime string `json:"startAnalyzeTime"`
	EndAnalyzeTime   string `json:"endAnalyzeTime"`
	Origin           string `json:"origin"`
	SourceFileName   string `json:"sourceFileName"`
	State            State  `json:"state"`
}

// OSASummaryResults aggregates the findings of a finished OSA scan.
type OSASummaryResults struct {
	TotalLibraries               int     `json:"totalLibraries"`
	HighVulnerabilityLibraries   int     `json:"highVulnerabilityLibraries"`
	MediumVulnerabilityLibraries int     `json:"mediumVulnerabilityLibraries"`
	LowVulnerabilityLibraries    int     `json:"lowVulnerabilityLibraries"`
	NonVulnerableLibraries       int     `json:"nonVulnerableLibraries"`
	VulnerableAndUpdated         int     `json:"vulnerableAndUpdated"`
	VulnerableAndOutdated        int     `json:"vulnerableAndOutdated"`
	VulnerabilityScore           string  `json:"vulnerabilityScore"`
	TotalHighVulnerabilities     int     `json:"totalHighVulnerabilities"`
	TotalMediumVulnerabilities   int     `json:"totalMediumVulnerabilities"`
	TotalLowVulnerabilities      int     `json:"totalLowVulnerabilities"`
	HighestScore                 float64 `json:"highestScore,omitempty"`
}

// Severity of a vulnerability.
type Severity struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MatchType tells how a library was identified.
type MatchType struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Library is a dependency found by an OSA scan.
type Library struct {
	ID                               string    `json:"id"`
	Name                             string    `json:"name"`
	Version                          string    `json:"version"`
	ReleaseDate                      string    `json:"releaseDate"`
	HighUniqueVulnerabilityCount     int       `json:"highUniqueVulnerabilityCount"`
	MediumUniqueVulnerabilityCount   int       `json:"mediumUniqueVulnerabilityCount"`
	LowUniqueVulnerabilityCount      int       `json:"lowUniqueVulnerabilityCount"`
	NotExploitableVulnerabilityCount int       `json:"notExploitableVulnerabilityCount"`
	NewestVersion                    string    `json:"newestVersion"`
	NewestVersionReleaseDate         string    `json:"newestVersionReleaseDate"`
	NumberOfVersionsSinceLastUpdate  int       `json:"numberOfVersionsSinceLastUpdate"`
	ConfidenceLevel                  int       `json:"confidenceLevel"`
	MatchType                        MatchType `json:"matchType"`
	Licenses                         []string  `json:"licenses"`
}

// CVE is a vulnerability found in a library.
type CVE struct {
	ID              string   `json:"id"`
	CveName         string   `json:"cveName"`
	Score           float64  `json:"score"`
	Severity        Severity `json:"severity"`
	PublishDate     string   `json:"publishDate"`
	URL             string   `json:"url"`
	Description     string   `json:"description"`
	Recommendations string   `json:"recommendations"`
	SourceFileName  string   `json:"sourceFileName"`
	LibraryID       string   `json:"libraryId"`
	State           State    `json:"state"`
}
