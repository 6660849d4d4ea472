/*
Package main implements a command line client for the scan server. Every
command maps onto one operation of lib/client; waiting commands can be
interrupted with SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"
	c "github.com/thompsy/go-cx-client/lib/client"
	"github.com/thompsy/go-cx-client/lib/config"
	"github.com/thompsy/go-cx-client/lib/metrics"
	"golang.org/x/sys/unix"
)

// Context contains data that is used by more than one of the commands.
type Context struct {
	Ctx    context.Context
	Client *c.Client
	Config *config.Config
}

// cli represents the available command line options.
var cli struct {
	Ping               PingCmd               `cmd:"" help:"Check that the server answers at the configured url."`
	Login              LoginCmd              `cmd:"" help:"Log in to the server."`
	Scan               ScanCmd               `cmd:"" help:"Scan zipped local sources."`
	WaitScan           WaitScanCmd           `cmd:"" name:"wait-scan" help:"Wait for a scan to finish."`
	Results            ResultsCmd            `cmd:"" help:"Show the results of the last scan of a project."`
	Report             ReportCmd             `cmd:"" help:"Generate and download a scan report."`
	OSAScan            OSAScanCmd            `cmd:"" name:"osa-scan" help:"Submit dependencies for an OSA scan."`
	WaitOSA            WaitOSACmd            `cmd:"" name:"wait-osa" help:"Wait for an OSA scan to finish."`
	OSASummary         OSASummaryCmd         `cmd:"" name:"osa-summary" help:"Show the summary of an OSA scan."`
	OSALibraries       OSALibrariesCmd       `cmd:"" name:"osa-libraries" help:"List the libraries found by an OSA scan."`
	OSAVulnerabilities OSAVulnerabilitiesCmd `cmd:"" name:"osa-vulnerabilities" help:"List the vulnerabilities found by an OSA scan."`
	Presets            PresetCmd             `cmd:"" help:"Resolve a preset name to its id."`
	Team               TeamCmd               `cmd:"" help:"Resolve a team path to its id."`

	Config          string `short:"c" help:"Path of the YAML configuration file." type:"path"`
	URL             string `short:"u" help:"Server url, overrides the configuration file."`
	Username        string `help:"User name, overrides the configuration file."`
	Password        string `help:"Password, overrides the configuration file."`
	Insecure        bool   `help:"Disable TLS certificate verification."`
	CACert          string `name:"ca-cert" help:"PEM file with additional trusted CA certificates." type:"path"`
	LogLevel        string `help:"Log level (trace|debug|info|warn|error)."`
	MetricsTextfile string `help:"Write Prometheus metrics to this file on exit."`
}

// override applies the command line flags on top of cfg.
func override(cfg *config.Config) {
	if cli.URL != "" {
		cfg.Server.URL = cli.URL
	}
	if cli.Username != "" {
		cfg.Server.Username = cli.Username
	}
	if cli.Password != "" {
		cfg.Server.Password = cli.Password
	}
	if cli.Insecure {
		cfg.Server.Insecure = true
	}
	if cli.CACert != "" {
		cfg.Server.CACertFile = cli.CACert
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.MetricsTextfile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = cli.MetricsTextfile
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command selected by args and returns the process exit
// code. Deferred cleanup runs before the process exits.
func run(args []string) int {
	parser, err := kong.New(&cli,
		kong.Name("cxclient"),
		kong.Description("Client for static code and open source analysis scans."),
		kong.UsageOnError(),
	)
	if err != nil {
		log.WithError(err).Error("error building command line parser")
		return 1
	}
	ctx, err := parser.Parse(args)
	parser.FatalIfErrorf(err)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.WithError(err).Error("error loading configuration")
		return 1
	}
	override(cfg)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("invalid configuration")
		return 1
	}
	if err := cfg.Log.Apply(); err != nil {
		log.WithError(err).Error("invalid log configuration")
		return 1
	}
	if cfg.Metrics.Enabled {
		metrics.MustRegister()
	}

	log.WithFields(log.Fields{
		"invocation": uuid.NewV4().String(),
		"command":    ctx.Command(),
		"server":     cfg.Server.URL,
	}).Debug("starting")

	client, err := c.NewClient(cfg.ClientConfig())
	if err != nil {
		log.WithError(err).Error("error creating client")
		return 1
	}
	defer client.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	err = ctx.Run(&Context{Ctx: sigCtx, Client: client, Config: cfg})
	if cfg.Metrics.Textfile != "" {
		if werr := metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			log.WithError(werr).Warn("failed to write metrics")
		}
	}
	if err != nil {
		ctx.Errorf("%s", err)
		return 1
	}
	return 0
}
