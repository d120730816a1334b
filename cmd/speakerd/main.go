/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	syscall "golang.org/x/sys/unix"

	"github.com/rcslab/speakerd/speaker"
)

func prepareConfig(cfgPath, broadcast, output, device, logLevel string, monitoringPort int) (*speaker.Config, error) {
	cfg := speaker.DefaultConfig()
	var err error
	warn := func(name string) {
		log.Warningf("overriding %s from CLI flag", name)
	}
	if cfgPath != "" {
		cfg, err = speaker.ReadConfig(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("reading config from %q: %w", cfgPath, err)
		}
	}
	if broadcast != "" && broadcast != cfg.BroadcastAddress {
		if cfg.BroadcastAddress != "" {
			warn("broadcast")
		}
		cfg.BroadcastAddress = broadcast
	}
	if monitoringPort != 0 && monitoringPort != cfg.MonitoringPort {
		warn("monitoringport")
		cfg.MonitoringPort = monitoringPort
	}
	if output != "" && output != cfg.Output {
		warn("output")
		cfg.Output = output
	}
	if device != "" && device != cfg.Device {
		warn("device")
		cfg.Device = device
	}
	if logLevel != "" && logLevel != cfg.LogLevel {
		warn("loglevel")
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func main() {
	var (
		cfgPath        string
		broadcast      string
		output         string
		device         string
		logLevel       string
		monitoringPort int
	)
	flag.StringVar(&cfgPath, "config", "", "Path to a yaml config file; flags override it")
	flag.StringVar(&broadcast, "broadcast", "", "LAN broadcast address, e.g. 192.168.1.255")
	flag.StringVar(&output, "output", "", "Audio output backend: oss or portaudio")
	flag.StringVar(&device, "device", "", "OSS device path")
	flag.StringVar(&logLevel, "loglevel", "", "Log level: debug, info, warning, error")
	flag.IntVar(&monitoringPort, "monitoringport", 0, "Port for the metrics endpoint, 0 disables it")
	flag.Parse()

	cfg, err := prepareConfig(cfgPath, broadcast, output, device, logLevel, monitoringPort)
	if err != nil {
		log.Fatalf("Config is invalid: %v", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Unrecognized log level: %v", cfg.LogLevel)
	}
	log.SetLevel(level)

	d, err := speaker.New(cfg)
	if err != nil {
		log.Fatalf("Starting speakerd: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigStop := make(chan os.Signal, 1)
	signal.Notify(sigStop, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	go func() {
		<-sigStop
		log.Warning("Graceful shutdown")
		cancel()
	}()

	if supported, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warningf("Failed to notify systemd: %v", err)
	} else if !supported {
		log.Debug("Running outside systemd")
	}

	if err := d.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("speakerd: %v", err)
	}
}
