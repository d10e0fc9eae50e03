package main

import (
	"os"
	"path"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/logstore/internal/cli"
	"github.com/julianstephens/logstore/internal/logger"
	"github.com/julianstephens/logstore/internal/logstore"
)

var (
	version = "logstore v0.1.0"
)

type LogOpts struct {
	Level  string `help:"Logging level (debug, info, warn, error)" default:"info" envvar:"LOGSTORE_LOG_LEVEL"`
	Debug  bool   `help:"Enable debug logging (overrides --level)"                envvar:"LOGSTORE_DEBUG"`
	Stream bool   `help:"Log to stdout/stderr in addition to file"                envvar:"LOGSTORE_LOG_STREAM"`
}

type CLI struct {
	Init   cli.InitCmd   `cmd:"" help:"Initialize a new log directory"`
	Append cli.AppendCmd `cmd:"" help:"Append entries and make them durable"`
	Cat    cli.CatCmd    `cmd:"" help:"Dump committed entries to stdout"`
	Stats  cli.StatsCmd  `cmd:"" help:"Show committed metadata"`
	Doctor cli.DoctorCmd `cmd:"" help:"Verify framing and checksums of every entry"`
	Sync   cli.SyncCmd   `cmd:"" help:"Run an empty commit to catch up indexes and folds"`

	Logger  logger.Logger    `kong:"-"`
	LogOpts LogOpts          `         embed:"" prefix:"log-" help:"Logging options"`
	Version kong.VersionFlag `                                help:"Show version information" short:"V"`
}

func createLogger(opts LogOpts) (logger.Logger, error) {
	level := opts.Level
	if opts.Debug {
		level = "debug"
	}

	consoleLogger := logger.NewConsoleLogger(level)
	if opts.Stream {
		return consoleLogger, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	logDir := path.Join(homeDir, logstore.DefaultAppDir, logstore.DefaultLogDir)
	fileLogger, err := logger.NewFileLogger(
		logDir,
		logstore.DefaultLogFileName,
		logstore.DefaultLogMaxSize,
		logstore.DefaultLogMaxBackups,
	)
	if err != nil {
		return nil, err
	}

	return logger.NewMultiLogger(fileLogger, consoleLogger), nil
}

func main() {
	cliApp := &CLI{
		Logger: logger.NoOpLogger{},
	}
	ctx := kong.Parse(cliApp,
		kong.Name("logstore"),
		kong.Description("An append-only log with lagging secondary indexes"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)

	lg, err := createLogger(cliApp.LogOpts)
	if err != nil {
		ctx.FatalIfErrorf(err)
	}
	cliApp.Logger = lg

	defer func() {
		if c, ok := lg.(logger.Closeable); ok {
			_ = c.Close()
		}
	}()

	lg.Debug("running command", "command", ctx.Command())
	ctx.FatalIfErrorf(ctx.Run())
}
