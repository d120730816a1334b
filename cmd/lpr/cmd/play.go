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

package cmd

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rcslab/speakerd/sender"
)

var playHeadroomFlag time.Duration
var playDiscoverTimeoutFlag time.Duration

func init() {
	RootCmd.AddCommand(playCmd)
	playCmd.Flags().DurationVar(&playHeadroomFlag, "headroom", sender.DefaultHeadroom, "how far in the future to schedule the start")
	playCmd.Flags().DurationVar(&playDiscoverTimeoutFlag, "timeout", sender.DefaultDiscoverTimeout, "how long to wait for a speaker announcement")
}

var playCmd = &cobra.Command{
	Use:   "play AACFILE",
	Short: "Upload an ADTS AAC file to every speaker and start them together",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureVerbosity()

		cfg := sender.DefaultConfig()
		cfg.TimesyncPort = rootTimesyncPortFlag
		cfg.ControlPort = rootControlPortFlag
		cfg.Headroom = playHeadroomFlag
		cfg.DiscoverTimeout = playDiscoverTimeoutFlag

		song, err := sender.LoadSong(args[0])
		if err != nil {
			log.Fatal(err)
		}
		if err := sender.NewSender(cfg).Play(song); err != nil {
			log.Fatal(err)
		}
	},
}
