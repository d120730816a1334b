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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"
)

// registerSysCollectors adds process CPU and RSS gauges, sampled at
// scrape time.
func registerSysCollectors(r *prometheus.Registry) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warningf("monitoring: process stats unavailable: %v", err)
		return
	}
	r.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "speakerd_process_cpu_percent", Help: "Process CPU usage"},
		func() float64 {
			v, err := proc.CPUPercent()
			if err != nil {
				return 0
			}
			return v
		},
	))
	r.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "speakerd_process_rss_bytes", Help: "Process resident memory"},
		func() float64 {
			mi, err := proc.MemoryInfo()
			if err != nil {
				return 0
			}
			return float64(mi.RSS)
		},
	))
}
