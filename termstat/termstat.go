// Copyright 2024 Statbase Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package termstat provides a stats implementation which periodically
// prints step runner progress to the given writer. It is meant for
// watching a run at the terminal in lieu of an actual collector writing
// to an external tool like graphite or datadog.
package termstat

import (
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// Collector collects counters and step timings and prints them to the
// terminal on a fixed interval. Names are printed in sorted order so the
// line is stable as a run progresses.
type Collector struct {
	lock    sync.Mutex
	counts  map[string]int64
	timings map[string]time.Duration
	changed bool
	out     io.Writer
}

// NewCollector initializes and returns a new Collector.
func NewCollector(out io.Writer) *Collector {
	ts := &Collector{
		counts:  make(map[string]int64),
		timings: make(map[string]time.Duration),
		out:     out,
	}
	go func() {
		tick := time.NewTicker(time.Second * 2)
		for ; ; <-tick.C {
			ts.write()
		}
	}()
	return ts
}

// Count adds value to the named stat at the specified rate.
func (t *Collector) Count(name string, value int64, rate float64, tags ...string) {
	if rate < 1 && rand.Float64() > rate {
		return
	}
	t.lock.Lock()
	t.changed = true
	t.counts[name] += value
	t.lock.Unlock()
}

// Timing accumulates wall time under the named stat. The runner reports
// one Timing per completed step.
func (t *Collector) Timing(name string, value time.Duration, rate float64, tags ...string) {
	t.lock.Lock()
	t.changed = true
	t.timings[name] += value
	t.lock.Unlock()
}

func (t *Collector) write() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.changed {
		return
	}
	names := make([]string, 0, len(t.counts)+len(t.timings))
	for name := range t.counts {
		names = append(names, name)
	}
	sort.Strings(names)
	sb := strings.Builder{}
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %d ", name, t.counts[name])
	}
	names = names[:0]
	for name := range t.timings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %s ", name, t.timings[name].Round(time.Millisecond))
	}
	t.changed = false
	fmt.Fprintf(t.out, "\r"+sb.String())
}

// Gauge does nothing.
func (t *Collector) Gauge(name string, value float64, rate float64, tags ...string) {}

// Histogram does nothing.
func (t *Collector) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set does nothing.
func (t *Collector) Set(name string, value string, rate float64, tags ...string) {}
