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

package speaker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.BroadcastAddress = "192.168.1.255"
	return cfg
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 8086, cfg.TimesyncPort)
	require.Equal(t, 8085, cfg.ControlPort)
	require.Equal(t, time.Second, cfg.AnnounceInterval)
	require.Equal(t, uint32(10*1024*1024), cfg.MaxSongSize)
	require.Error(t, cfg.Validate(), "the broadcast address has no sane default")
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	bad := validConfig()
	bad.Output = "alsa"
	require.Error(t, bad.Validate())

	bad = validConfig()
	bad.Device = ""
	require.Error(t, bad.Validate())

	bad = validConfig()
	bad.MonitoringPort = bad.ControlPort
	require.Error(t, bad.Validate())

	bad = validConfig()
	bad.LogLevel = "noisy"
	require.Error(t, bad.Validate())
}

func TestReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speakerd.yaml")
	data := `
broadcast_address: 10.0.0.255
monitoring_port: 9090
announce_interval: 500ms
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "10.0.0.255", cfg.BroadcastAddress)
	require.Equal(t, 9090, cfg.MonitoringPort)
	require.Equal(t, 500*time.Millisecond, cfg.AnnounceInterval)
	require.Equal(t, 8086, cfg.TimesyncPort, "defaults survive a partial file")
	require.Equal(t, OutputOSS, cfg.Output)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
