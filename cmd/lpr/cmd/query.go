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
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rcslab/speakerd/control"
)

func init() {
	RootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query SPEAKER",
	Short: "Ask one speaker for its current reference time",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureVerbosity()

		addr := net.JoinHostPort(args[0], fmt.Sprintf("%d", rootControlPortFlag))
		c, err := control.Dial(addr)
		if err != nil {
			log.Fatal(err)
		}
		defer c.Close()

		local := time.Now().UnixMicro()
		ref, err := c.QueryTime()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("reference time: %d us\n", ref)
		fmt.Printf("local time:     %d us\n", local)
		fmt.Printf("difference:     %d us\n", ref-local)
	},
}
