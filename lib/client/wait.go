package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/thompsy/go-cx-client/lib"
	"github.com/thompsy/go-cx-client/lib/metrics"
	"github.com/thompsy/go-cx-client/lib/poll"
	"github.com/thompsy/go-cx-client/lib/rest"
	"github.com/thompsy/go-cx-client/lib/sdk"
)

func instrument[T any](c *Client, kind lib.Kind, h poll.Handler[T]) poll.Handler[T] {
	if !c.cfg.Instrument {
		return h
	}
	return metrics.ObserveWithClock(kind, c.cfg.clock, h)
}

// WaitForScanToFinish polls the code scan runID every ScanInterval until it
// finishes. timeoutMin bounds the wait in minutes; zero or negative waits
// until the scan reaches a terminal state. h may be nil.
func (c *Client) WaitForScanToFinish(ctx context.Context, runID string, timeoutMin int64, h poll.Handler[sdk.ScanStatus]) (sdk.ScanStatus, error) {
	job := lib.Job{ID: runID, Kind: lib.KindScan}
	query := func(ctx context.Context) (sdk.ScanStatus, error) {
		token, err := c.sdkToken(ctx)
		if err != nil {
			return sdk.ScanStatus{}, err
		}
		st, err := c.sdk.GetStatusOfSingleScan(ctx, token, runID)
		if err != nil {
			return st, err
		}
		return st, st.Err("failed to get status of scan")
	}
	cfg := poll.Config{
		Interval:   c.cfg.ScanInterval,
		Timeout:    timeoutMin,
		Unit:       time.Minute,
		MaxRetries: c.cfg.MaxRetries,
		Clock:      c.cfg.clock,
	}

	out, err := poll.Run[sdk.ScanStatus](ctx, job, query, ScanClassifier{}, cfg, instrument(c, job.Kind, h))
	return last(out), err
}

// WaitForReport polls the report reportID every ReportInterval until it is
// ready. The wait is bounded by ReportTimeout seconds. An unsuccessful status
// response is logged and its flags are still evaluated; failed status queries
// are logged as warnings and retried.
func (c *Client) WaitForReport(ctx context.Context, reportID int64) (sdk.ReportStatus, error) {
	job := lib.Job{ID: strconv.FormatInt(reportID, 10), Kind: lib.KindReport}
	query := func(ctx context.Context) (sdk.ReportStatus, error) {
		token, err := c.sdkToken(ctx)
		if err != nil {
			return sdk.ReportStatus{}, err
		}
		st, err := c.sdk.GetScanReportStatus(ctx, token, reportID)
		if err != nil {
			log.WithError(err).WithField("report", reportID).Warn("failed to get status of scan report")
			return st, err
		}
		if !st.IsSuccesfull {
			log.WithField("report", reportID).Warnf("failed to get status of scan report: %s", st.ErrorMessage)
		}
		return st, nil
	}
	cfg := poll.Config{
		Interval:   c.cfg.ReportInterval,
		Timeout:    c.cfg.ReportTimeout,
		Unit:       time.Second,
		MaxRetries: c.cfg.MaxRetries,
		Clock:      c.cfg.clock,
	}

	var h poll.Handler[sdk.ReportStatus] = &reportProgress{id: reportID}
	out, err := poll.Run[sdk.ReportStatus](ctx, job, query, ReportClassifier{}, cfg, instrument(c, job.Kind, h))
	return last(out), err
}

// reportProgress logs the remaining time of a report wait.
type reportProgress struct {
	poll.NopHandler[sdk.ReportStatus]
	id       int64
	deadline time.Time
}

func (r *reportProgress) OnStart(start time.Time, timeout int64) {
	r.deadline = start.Add(time.Duration(timeout) * time.Second)
}

func (r *reportProgress) OnIdle(s poll.Status[sdk.ReportStatus]) {
	log.WithFields(log.Fields{
		"report":       r.id,
		"seconds_left": int64(r.deadline.Sub(s.Observed).Seconds()),
	}).Debug("waiting for server to generate report")
}

// WaitForOSAScanToFinish polls the OSA scan scanID every OSAInterval until it
// finishes. The REST session is renewed before polling starts since it may
// have expired while the caller prepared the scan. timeoutMin bounds the wait
// in minutes; zero or negative waits until the scan reaches a terminal
// state. h may be nil.
func (c *Client) WaitForOSAScanToFinish(ctx context.Context, scanID string, timeoutMin int64, h poll.Handler[rest.OSAScanStatus]) (rest.OSAScanStatus, error) {
	if _, err := c.osa.Refresh(ctx); err != nil {
		return rest.OSAScanStatus{}, err
	}

	job := lib.Job{ID: scanID, Kind: lib.KindOSAScan}
	query := func(ctx context.Context) (rest.OSAScanStatus, error) {
		return c.rest.GetOSAScanStatus(ctx, scanID)
	}
	cfg := poll.Config{
		Interval:   c.cfg.OSAInterval,
		Timeout:    timeoutMin,
		Unit:       time.Minute,
		MaxRetries: c.cfg.MaxRetries,
		Clock:      c.cfg.clock,
	}

	out, err := poll.Run[rest.OSAScanStatus](ctx, job, query, OSAClassifier{}, cfg, instrument(c, job.Kind, h))
	return last(out), err
}

func last[T any](out poll.Outcome[T]) T {
	var zero T
	if out.Last == nil {
		return zero
	}
	return out.Last.Raw
}

// describeScan renders the progress of a code scan for LogHandler.
func describeScan(s poll.Status[sdk.ScanStatus]) string {
	r := s.Raw
	if r.CurrentStatus == sdk.StatusQueued {
		return fmt.Sprintf("queue position %d", r.QueuePosition)
	}
	if r.StageName == "" {
		return ""
	}
	return fmt.Sprintf("%s %d%%, total %d%%", r.StageName, r.CurrentStagePercent, r.TotalPercent)
}

// ScanLogHandler returns a handler logging the progress of the scan runID.
func ScanLogHandler(runID string) poll.Handler[sdk.ScanStatus] {
	return poll.LogHandler[sdk.ScanStatus]{Name: "scan " + runID, Describe: describeScan}
}

// OSALogHandler returns a handler logging the progress of the OSA scan scanID.
func OSALogHandler(scanID string) poll.Handler[rest.OSAScanStatus] {
	return poll.LogHandler[rest.OSAScanStatus]{Name: "osa scan " + scanID}
}
