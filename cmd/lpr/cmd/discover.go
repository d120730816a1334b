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
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rcslab/speakerd/sender"
	"github.com/rcslab/speakerd/timesync"
)

var discoverTimeoutFlag time.Duration

func init() {
	RootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().DurationVar(&discoverTimeoutFlag, "timeout", sender.DefaultDiscoverTimeout, "how long to wait for a speaker announcement")
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Listen for one announcement and show the cluster it describes",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()

		d, err := sender.Discover(rootTimesyncPortFlag, discoverTimeoutFlag)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("announcement from %s, local time %d\n", d.Source, d.Packet.TS)

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"speaker", "td(us)"})
		table.Append([]string{d.Source.String(), "announcer"})
		for _, m := range d.Packet.Machines {
			if m.IP == 0 {
				continue
			}
			table.Append([]string{timesync.Uint32ToIP(m.IP).String(), fmt.Sprintf("%d", m.TD)})
		}
		table.Render()
	},
}
