// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command fanoutd-demo is an illustrative embedding collaborator for the
// publisher/subscriber library: a thin flags -> config -> logging -> wiring
// CLI, not a product of spec.md itself (see spec.md §1's Out-of-scope list
// and SPEC_FULL.md §9's Non-goals). It exists so the library can be
// exercised end to end from a terminal.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/nishisan-dev/fanoutd/internal/config"
	"github.com/nishisan-dev/fanoutd/internal/logging"
	"github.com/nishisan-dev/fanoutd/internal/pubsub/publisher"
	"github.com/nishisan-dev/fanoutd/internal/pubsub/subscriber"
)

func main() {
	mode := flag.String("mode", "", "publisher | subscriber")
	configPath := flag.String("config", "", "path to a publisher or subscriber YAML config file")
	sessionLogDir := flag.String("session-log-dir", "", "publisher mode only: write a dedicated log file per subscriber under this directory")
	flag.Parse()

	switch *mode {
	case "publisher":
		runPublisher(*configPath, *sessionLogDir)
	case "subscriber":
		runSubscriber(*configPath)
	default:
		fmt.Fprintln(os.Stderr, "usage: fanoutd-demo -mode publisher|subscriber -config <path>")
		os.Exit(2)
	}
}

func runPublisher(configPath, sessionLogDir string) {
	cfg, err := config.LoadPublisherConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	opts := []publisher.Option{
		publisher.WithPortName(cfg.Publisher.Name),
		publisher.WithTimeoutACK(cfg.Publisher.TimeoutACK()),
		publisher.WithLogger(logger),
	}
	if cfg.Publisher.RateHz > 0 {
		opts = append(opts, publisher.WithRateHz(cfg.Publisher.RateHz))
	}
	pub := publisher.New(cfg.Publisher.Port, cfg.Publisher.MaxReceivers, opts...)

	// sessionClosers/sessionIDs track the per-subscriber dedicated log file
	// opened on each handshake: an ungraceful drop just closes the file (kept
	// for postmortem), a clean publisher shutdown below both closes and
	// removes it via logging.RemoveSessionLog.
	var sessionMu sync.Mutex
	sessionClosers := map[string]io.Closer{}
	sessionIDs := map[string]string{}

	pub.SetOnNewConnection(func(name string) {
		logger.Info("subscriber connected", "name", name)
		if sessionLogDir == "" {
			return
		}
		connectionID := strconv.FormatInt(time.Now().UnixNano(), 10)
		connLogger, closer, path, err := logging.NewSessionLogger(logger, sessionLogDir, name, connectionID)
		if err != nil {
			logger.Warn("could not open per-subscriber connection log", "name", name, "error", err)
			return
		}
		connLogger.Info("subscriber connection log opened", "path", path)
		sessionMu.Lock()
		sessionClosers[name] = closer
		sessionIDs[name] = connectionID
		sessionMu.Unlock()
	})
	pub.SetOnDropped(func(name string) {
		// An ungraceful drop (write error or missed ACK) keeps its log file
		// around for postmortem; only a clean shutdown removes it, below.
		logger.Info("subscriber dropped", "name", name)
		sessionMu.Lock()
		closer, ok := sessionClosers[name]
		delete(sessionClosers, name)
		delete(sessionIDs, name)
		sessionMu.Unlock()
		if ok {
			_ = closer.Close()
		}
	})

	if err := pub.Start(); err != nil {
		logger.Error("publisher failed to start", "error", err)
		os.Exit(1)
	}
	defer func() {
		pub.Close()
		sessionMu.Lock()
		defer sessionMu.Unlock()
		for name, closer := range sessionClosers {
			_ = closer.Close()
			if sessionLogDir != "" {
				logging.RemoveSessionLog(sessionLogDir, name, sessionIDs[name])
			}
			delete(sessionClosers, name)
		}
	}()

	logger.Info("publisher running, type a line to broadcast it, Ctrl-D to stop")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if !pub.TellRaw([]byte(line), "demo") {
			logger.Warn("publisher not running, dropping line")
		}
	}
}

func runSubscriber(configPath string) {
	cfg, err := config.LoadSubscriberConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	sub := subscriber.New(cfg.Subscriber.Host, cfg.Subscriber.Port, cfg.Subscriber.Name,
		subscriber.WithBufferSize(cfg.Subscriber.BufferSize),
		subscriber.WithConnectWait(cfg.Subscriber.ConnectWait()),
		subscriber.WithLogger(logger),
	)

	sub.SetOnNewConnection(func() {
		logger.Info("handshake complete")
	})
	sub.SetProcess(func(data any, tag string) {
		logger.Info("received", "tag", tag, "data", data)
	})

	sub.Connect()
	defer sub.Close()

	// Keep the demo alive; a real embedding application would instead run
	// its own event loop and call sub.Close() on shutdown.
	for {
		time.Sleep(time.Second)
	}
}
