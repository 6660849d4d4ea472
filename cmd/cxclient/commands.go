package main

import (
	"crypto/sha1" //nolint:gosec // the server identifies dependencies by SHA-1
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	c "github.com/thompsy/go-cx-client/lib/client"
	"github.com/thompsy/go-cx-client/lib/rest"
	"github.com/thompsy/go-cx-client/lib/sdk"
)

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// orDefault returns the flag value when it was given, def otherwise. A
// non-positive result waits forever.
func orDefault(flag, def int64) int64 {
	if flag != 0 {
		return flag
	}
	return def
}

// PingCmd checks the connectivity to the server.
type PingCmd struct{}

// Run checks that the SDK web service answers.
func (p *PingCmd) Run(ctx *Context) error {
	if err := ctx.Client.CheckServerConnectivity(ctx.Ctx); err != nil {
		return err
	}
	fmt.Printf("Server %s is reachable\n", ctx.Config.Server.URL)
	return nil
}

// LoginCmd verifies the configured credentials.
type LoginCmd struct{}

// Run logs in to the server.
func (l *LoginCmd) Run(ctx *Context) error {
	if err := ctx.Client.LoginToServer(ctx.Ctx); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", ctx.Config.Server.Username)
	return nil
}

// ScanCmd represents the arguments needed to scan zipped local sources.
type ScanCmd struct {
	Zip                string `arg:"" name:"zip" help:"Zip file with the sources to scan." type:"existingfile"`
	Project            string `short:"n" required:"" help:"Project name."`
	Team               string `help:"Full path of the team owning the project."`
	Preset             string `help:"Preset name." default:"Checkmarx Default"`
	FailPresetNotFound bool   `help:"Fail instead of using the default preset when the preset is unknown."`
	Incremental        bool   `help:"Run an incremental scan."`
	Private            bool   `help:"Run a private scan."`
	Comment            string `help:"Scan comment."`
	ExcludeFolders     string `help:"Comma separated folder exclusion patterns."`
	ExcludeFiles       string `help:"Comma separated file exclusion patterns."`
	Wait               bool   `help:"Wait for the scan to finish and show its results."`
	Timeout            int64  `help:"Scan timeout in minutes when waiting, defaults to wait.scan_timeout_minutes."`
}

// Run submits the scan and optionally waits for it.
func (s *ScanCmd) Run(ctx *Context) error {
	zipped, err := os.ReadFile(s.Zip)
	if err != nil {
		return fmt.Errorf("failed to read sources: %w", err)
	}

	conf := c.LocalScanConfiguration{
		ProjectName:        s.Project,
		Preset:             s.Preset,
		FailPresetNotFound: s.FailPresetNotFound,
		IsPrivate:          s.Private,
		IsIncremental:      s.Incremental,
		Comment:            s.Comment,
		FileName:           filepath.Base(s.Zip),
		ZippedSources:      zipped,
		FolderExclusions:   s.ExcludeFolders,
		FileExclusions:     s.ExcludeFiles,
	}
	if s.Team != "" {
		conf.GroupID, err = ctx.Client.ResolveGroupIDFromTeamPath(ctx.Ctx, s.Team)
		if err != nil {
			return err
		}
	}

	resp, err := ctx.Client.CreateLocalScanResolveFields(ctx.Ctx, conf)
	if err != nil {
		return err
	}
	fmt.Printf("Project id: %d\nRun id: %s\n", resp.ProjectID, resp.RunID)
	if !s.Wait {
		return nil
	}

	timeout := orDefault(s.Timeout, ctx.Config.Wait.ScanTimeout)
	if _, err := ctx.Client.WaitForScanToFinish(ctx.Ctx, resp.RunID, timeout, c.ScanLogHandler(resp.RunID)); err != nil {
		return err
	}
	results, err := ctx.Client.RetrieveScanResults(ctx.Ctx, resp.ProjectID)
	if err != nil {
		return err
	}
	return printJSON(results)
}

// WaitScanCmd represents the arguments needed to wait for a scan.
type WaitScanCmd struct {
	RunID   string `arg:"" name:"runID" help:"Run id of the scan."`
	Timeout int64  `help:"Timeout in minutes, defaults to wait.scan_timeout_minutes."`
}

// Run waits for the scan identified by the given run id.
func (w *WaitScanCmd) Run(ctx *Context) error {
	timeout := orDefault(w.Timeout, ctx.Config.Wait.ScanTimeout)
	st, err := ctx.Client.WaitForScanToFinish(ctx.Ctx, w.RunID, timeout, c.ScanLogHandler(w.RunID))
	if err != nil {
		return err
	}
	fmt.Printf("Scan id: %d\nProject id: %d\n", st.ScanID, st.ProjectID)
	return nil
}

// ResultsCmd represents the arguments needed to show scan results.
type ResultsCmd struct {
	ProjectID int64 `arg:"" name:"projectID" help:"Project id."`
}

// Run prints the summary of the last scan of the project.
func (r *ResultsCmd) Run(ctx *Context) error {
	results, err := ctx.Client.RetrieveScanResults(ctx.Ctx, r.ProjectID)
	if err != nil {
		return err
	}
	return printJSON(results)
}

// ReportCmd represents the arguments needed to download a report.
type ReportCmd struct {
	ScanID int64  `arg:"" name:"scanID" help:"Scan id."`
	Type   string `short:"t" help:"Report type (PDF|RTF|CSV|XML)." default:"PDF" enum:"PDF,RTF,CSV,XML"`
	Output string `short:"o" help:"Output file, defaults to report-<scanID>.<type>."`
}

// Run generates the report and writes it to the output file.
func (r *ReportCmd) Run(ctx *Context) error {
	typ, err := sdk.ParseReportType(r.Type)
	if err != nil {
		return err
	}
	b, err := ctx.Client.GetScanReport(ctx.Ctx, r.ScanID, typ)
	if err != nil {
		return err
	}

	out := r.Output
	if out == "" {
		out = fmt.Sprintf("report-%d.%s", r.ScanID, strings.ToLower(r.Type))
	}
	if err := os.WriteFile(out, b, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Printf("Report written to %s\n", out)
	return nil
}

// OSAScanCmd represents the arguments needed to submit an OSA scan.
type OSAScanCmd struct {
	ProjectID int64    `short:"p" required:"" help:"Project id."`
	Files     []string `arg:"" name:"files" help:"Dependency files to analyse."`
	Wait      bool     `help:"Wait for the scan to finish and show its summary."`
	Timeout   int64    `help:"Scan timeout in minutes when waiting, defaults to wait.osa_timeout_minutes."`
}

// hashFiles returns the name and SHA-1 digest of every file in paths.
func hashFiles(paths []string) ([]rest.OSAFile, error) {
	files := make([]rest.OSAFile, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		sum := sha1.Sum(b)
		files = append(files, rest.OSAFile{Filename: filepath.Base(p), Sha1: hex.EncodeToString(sum[:])})
	}
	return files, nil
}

// Run submits the OSA scan and optionally waits for it.
func (o *OSAScanCmd) Run(ctx *Context) error {
	if len(o.Files) == 0 {
		return errors.New("no dependency files given")
	}
	files, err := hashFiles(o.Files)
	if err != nil {
		return err
	}
	log.WithField("files", len(files)).Info("sending OSA scan request")

	resp, err := ctx.Client.CreateOSAScan(ctx.Ctx, o.ProjectID, files)
	if err != nil {
		return err
	}
	fmt.Printf("OSA scan id: %s\n", resp.ScanID)
	if !o.Wait {
		return nil
	}

	timeout := orDefault(o.Timeout, ctx.Config.Wait.OSATimeout)
	if _, err := ctx.Client.WaitForOSAScanToFinish(ctx.Ctx, resp.ScanID, timeout, c.OSALogHandler(resp.ScanID)); err != nil {
		return err
	}
	summary, err := ctx.Client.RetrieveOSAScanSummaryResults(ctx.Ctx, resp.ScanID)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

// WaitOSACmd represents the arguments needed to wait for an OSA scan.
type WaitOSACmd struct {
	ScanID  string `arg:"" name:"scanID" help:"OSA scan id."`
	Timeout int64  `help:"Timeout in minutes, defaults to wait.osa_timeout_minutes."`
}

// Run waits for the OSA scan identified by the given scan id.
func (w *WaitOSACmd) Run(ctx *Context) error {
	timeout := orDefault(w.Timeout, ctx.Config.Wait.OSATimeout)
	st, err := ctx.Client.WaitForOSAScanToFinish(ctx.Ctx, w.ScanID, timeout, c.OSALogHandler(w.ScanID))
	if err != nil {
		return err
	}
	fmt.Printf("OSA scan %s: %s\n", st.ID, st.State.Name)
	return nil
}

// OSASummaryCmd represents the arguments needed to show an OSA summary.
type OSASummaryCmd struct {
	ScanID string `arg:"" name:"scanID" help:"OSA scan id."`
}

// Run prints the summary of the OSA scan.
func (o *OSASummaryCmd) Run(ctx *Context) error {
	summary, err := ctx.Client.RetrieveOSAScanSummaryResults(ctx.Ctx, o.ScanID)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

// OSALibrariesCmd represents the arguments needed to list OSA libraries.
type OSALibrariesCmd struct {
	ScanID string `arg:"" name:"scanID" help:"OSA scan id."`
}

// Run prints the libraries found by the OSA scan.
func (o *OSALibrariesCmd) Run(ctx *Context) error {
	libs, err := ctx.Client.GetOSALibraries(ctx.Ctx, o.ScanID)
	if err != nil {
		return err
	}
	return printJSON(libs)
}

// OSAVulnerabilitiesCmd represents the arguments needed to list OSA vulnerabilities.
type OSAVulnerabilitiesCmd struct {
	ScanID string `arg:"" name:"scanID" help:"OSA scan id."`
}

// Run prints the vulnerabilities found by the OSA scan.
func (o *OSAVulnerabilitiesCmd) Run(ctx *Context) error {
	cves, err := ctx.Client.GetOSAVulnerabilities(ctx.Ctx, o.ScanID)
	if err != nil {
		return err
	}
	return printJSON(cves)
}

// PresetCmd represents the arguments needed to resolve a preset.
type PresetCmd struct {
	Name string `arg:"" name:"name" help:"Preset name."`
}

// Run prints the id of the preset.
func (p *PresetCmd) Run(ctx *Context) error {
	id, err := ctx.Client.ResolvePresetIDFromName(ctx.Ctx, p.Name)
	if err != nil {
		return err
	}
	fmt.Printf("Preset id: %d\n", id)
	return nil
}

// TeamCmd represents the arguments needed to resolve a team.
type TeamCmd struct {
	Path string `arg:"" name:"path" help:"Full team path."`
}

// Run prints the id of the team.
func (t *TeamCmd) Run(ctx *Context) error {
	id, err := ctx.Client.ResolveGroupIDFromTeamPath(ctx.Ctx, t.Path)
	if err != nil {
		return err
	}
	fmt.Printf("Team id: %s\n", id)
	return nil
}
