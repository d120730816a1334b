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

/*
Package speaker ties the daemon together: time synchronization,
the control server, the audio sink and monitoring.
*/
package speaker

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"

	"github.com/rcslab/speakerd/audio"
	"github.com/rcslab/speakerd/control"
	"github.com/rcslab/speakerd/timesync"
)

// Audio output backends
const (
	OutputOSS       = "oss"
	OutputPortAudio = "portaudio"
)

// Config specifies speaker daemon options
type Config struct {
	// BroadcastAddress is the LAN broadcast address all speakers and
	// the controller share. There is no autodetection; run ifconfig
	// and set it.
	BroadcastAddress string        `yaml:"broadcast_address"`
	TimesyncPort     int           `yaml:"timesync_port"`
	ControlPort      int           `yaml:"control_port"`
	MonitoringPort   int           `yaml:"monitoring_port"` // 0 disables the endpoint
	AnnounceInterval time.Duration `yaml:"announce_interval"`
	MaxSongSize      uint32        `yaml:"max_song_size"`
	Output           string        `yaml:"output"` // oss or portaudio
	Device           string        `yaml:"device"` // OSS device path
	LogLevel         string        `yaml:"log_level"`
}

// DefaultConfig returns Config initialized with default values
func DefaultConfig() *Config {
	return &Config{
		TimesyncPort:     timesync.Port,
		ControlPort:      control.Port,
		AnnounceInterval: timesync.DefaultAnnounceInterval,
		MaxSongSize:      control.MaxSongSize,
		Output:           OutputOSS,
		Device:           audio.DefaultDSP,
		LogLevel:         "info",
	}
}

// ReadConfig loads Config from a yaml file on top of the defaults
func ReadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	cData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(cData, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate Config is sane
func (c *Config) Validate() error {
	ts := timesync.Config{BroadcastAddress: c.BroadcastAddress, Port: c.TimesyncPort, AnnounceInterval: c.AnnounceInterval}
	if err := ts.Validate(); err != nil {
		return err
	}
	ctl := control.Config{Port: c.ControlPort, MaxSongSize: c.MaxSongSize}
	if err := ctl.Validate(); err != nil {
		return err
	}
	if c.ControlPort == c.MonitoringPort {
		return fmt.Errorf("control and monitoring ports collide on %d", c.ControlPort)
	}
	if c.Output != OutputOSS && c.Output != OutputPortAudio {
		return fmt.Errorf("output must be either %q or %q", OutputOSS, OutputPortAudio)
	}
	if c.Output == OutputOSS && c.Device == "" {
		return fmt.Errorf("oss output needs a device path")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("unrecognized log level %q", c.LogLevel)
	}
	return nil
}
