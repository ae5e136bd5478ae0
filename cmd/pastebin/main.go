package main

import (
	"errors"
	"flag"
	"fmt"
	golog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mokuzzai/pastebin/server"
	"github.com/google/gops/agent"
	log "github.com/sirupsen/logrus"
)

func main() {
	defaultConfigFile := os.ExpandEnv("$HOME/lib/pastebin/pastebin.config")
	configFile := flag.String("config", defaultConfigFile, "location of configuration file")
	flag.Parse()

	conf, err := loadConfig(*configFile)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("path", *configFile).Info("No configuration file, using defaults")
		conf, err = &config{}, nil
	}
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"path": *configFile,
		}).Fatal("Could not load configuration")
	}

	conf.applyDefaultsForMissingProperties()

	if conf.Debug {
		log.SetLevel(log.DebugLevel)
	}

	cleanup := redirectLogging(conf)
	defer cleanup()

	if err := agent.Listen(agent.Options{}); err != nil {
		log.WithField("err", err).Warn("Could not start gops agent")
	} else {
		defer agent.Close()
	}

	opts, err := conf.serverOptions()
	if err != nil {
		log.WithField("err", err).Fatal("Invalid configuration")
	}

	b := newBackends()
	defer b.close()
	strategy, err := b.strategy(conf)
	if err != nil {
		b.close()
		log.WithField("err", err).Fatal("Could not set up storage")
	}
	log.WithFields(log.Fields{
		"strategy": conf.Strategy,
		"blobs":    conf.Blobs.Type,
		"index":    conf.Index.Type,
	}).Info("Storage ready")

	pasteServer := server.New(append(opts, server.WithStrategy(strategy))...)
	address, err := pasteServer.Listen()
	if err != nil {
		b.close()
		log.WithField("err", err).Fatal("Could not listen")
	}
	log.WithField("address", address).Info("Listening")

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-interrupts
		log.WithField("signal", sig).Info("Shutting down")
		if err := pasteServer.Shutdown(); err != nil {
			log.WithField("err", err).Warn("Could not shut down cleanly")
		}
	}()

	if err := pasteServer.Serve(); err != nil {
		log.WithField("err", err).Error("Serve returned an error")
	}
}

func redirectLogging(c *config) (cleanup func()) {
	golog.SetOutput(log.StandardLogger().Writer())
	if c.LogPath == "" {
		return func() {}
	}
	pathname := os.ExpandEnv(c.LogPath)
	logger := log.WithField("pathname", pathname)
	f, err := os.OpenFile(pathname, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		logger.WithField("err", err).Fatal("Could not open log file")
	}
	logger.Info("Lines after this one will be logged to a file")
	log.SetOutput(f)
	return func() {
		if err := f.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Could not close log file cleanly %q: %v", pathname, err)
		}
	}
}
