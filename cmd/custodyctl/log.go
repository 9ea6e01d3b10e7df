// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/spendingapp/custody/chain"
	"github.com/spendingapp/custody/custody"
	"github.com/spendingapp/custody/walletbridge"
)

const (
	// logFilename is the name of the log file inside the log directory.
	logFilename = "custodyctl.log"

	// logRotateKB is the size at which the log file is rolled.
	logRotateKB = 10 * 1024

	// logMaxRolls is the number of rolled log files kept.
	logMaxRolls = 3

	// logDirPerm is the permission of a created log directory.
	logDirPerm = 0o700
)

// logWriter writes to stdout and, once initialized, to the log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	_, _ = os.Stdout.Write(p)
	if logRotator != nil {
		_, _ = logRotator.Write(p)
	}

	return len(p), nil
}

var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is nil until initLogRotator is called.
	logRotator *rotator.Rotator

	log     = backendLog.Logger("CTL")
	cstdLog = backendLog.Logger("CSTD")
	chaiLog = backendLog.Logger("CHAI")
	wbrgLog = backendLog.Logger("WBRG")
)

func init() {
	custody.UseLogger(cstdLog)
	chain.UseLogger(chaiLog)
	walletbridge.UseLogger(wbrgLog)
}

// subsystemLoggers maps each subsystem identifier to its logger.
var subsystemLoggers = map[string]btclog.Logger{
	"CTL":  log,
	"CSTD": cstdLog,
	"CHAI": chaiLog,
	"WBRG": wbrgLog,
}

// initLogRotator creates the log directory and starts writing logs to a
// rotating file inside it.
func initLogRotator(logDir string) error {
	if err := os.MkdirAll(logDir, logDirPerm); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	r, err := rotator.New(
		filepath.Join(logDir, logFilename), logRotateKB, false,
		logMaxRolls,
	)
	if err != nil {
		return fmt.Errorf("create file rotator: %w", err)
	}

	logRotator = r

	return nil
}

// closeLogRotator flushes and closes the log file, if any.
func closeLogRotator() {
	if logRotator != nil {
		_ = logRotator.Close()
	}
}

// setLogLevels sets the level of every subsystem logger.
func setLogLevels(level string) error {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("invalid debug level %q, supported: trace, "+
			"debug, info, warn, error, critical, off", level)
	}

	for _, logger := range subsystemLoggers {
		logger.SetLevel(lvl)
	}

	return nil
}

// supportedSubsystems returns the sorted subsystem identifiers.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for id := range subsystemLoggers {
		subsystems = append(subsystems, id)
	}
	sort.Strings(subsystems)

	return subsystems
}
