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

package kafka

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/statbase/etl"
	"github.com/statbase/etl/snapshot"
)

// Main contains the configuration for draining a topic into a snapshot.
type Main struct {
	Hosts       []string `help:"Comma separated list of kafka hosts and ports."`
	Topics      []string `help:"Kafka topics to consume."`
	Group       string   `help:"Kafka consumer group."`
	MaxMsgs     int      `help:"Stop after this many messages - the snapshot must be finite."`
	RegistryURL string   `help:"Confluent schema registry host:port. Empty means messages are plain JSON."`
	SnapshotDir string   `help:"Root of the local snapshot store."`
	Namespace   string   `help:"Snapshot namespace."`
	ShortName   string   `help:"Snapshot file name, e.g. air_quality.jsonl."`
	Producer    string   `help:"Name of the data producer for the provenance record."`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		Hosts:       []string{"localhost:9092"},
		Topics:      []string{"test"},
		Group:       "statbase-etl",
		MaxMsgs:     100000,
		SnapshotDir: "data/snapshots",
		Namespace:   "kafka",
		ShortName:   "stream.jsonl",
	}
}

// Run drains the topic and registers the result as a snapshot dated today.
func (m *Main) Run() error {
	if len(m.Topics) == 0 {
		return errors.New("at least one topic is required")
	}
	var src etl.Source
	if m.RegistryURL != "" {
		csrc := NewConfluentSource()
		csrc.Hosts = m.Hosts
		csrc.Topics = m.Topics
		csrc.Group = m.Group
		csrc.MaxMsgs = m.MaxMsgs
		csrc.RegistryURL = m.RegistryURL
		if err := csrc.Open(); err != nil {
			return errors.Wrap(err, "opening confluent source")
		}
		defer csrc.Close()
		src = csrc
	} else {
		jsrc := NewSource()
		jsrc.Hosts = m.Hosts
		jsrc.Topics = m.Topics
		jsrc.Group = m.Group
		jsrc.MaxMsgs = m.MaxMsgs
		if err := jsrc.Open(); err != nil {
			return errors.Wrap(err, "opening source")
		}
		defer jsrc.Close()
		src = jsrc
	}

	version := time.Now().UTC().Format("2006-01-02")
	tmp, err := ioutil.TempFile("", "kafka-snapshot")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name())

	n, err := Drain(src, tmp)
	if err != nil {
		return errors.Wrap(err, "draining topic")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}

	store := snapshot.NewStore(m.SnapshotDir)
	meta := snapshot.Meta{
		Namespace: m.Namespace,
		Version:   version,
		ShortName: m.ShortName,
		IsPublic:  true,
		Origin: etl.Origin{
			Producer:     m.Producer,
			Title:        m.Topics[0],
			DateAccessed: version,
		},
	}
	sc, err := store.Add(tmp.Name(), meta)
	if err != nil {
		return errors.Wrap(err, "adding snapshot")
	}
	log.Printf("drained %d messages into %s/%s/%s (md5 %s)", n, m.Namespace, version, m.ShortName, sc.Outs[0].MD5)
	return nil
}

// Drain reads records from src until io.EOF and writes them to w as JSON
// lines, returning the number written.
func Drain(src etl.Source, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for {
		rec, err := src.Record()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, errors.Wrap(err, "getting record")
		}
		if err := enc.Encode(rec); err != nil {
			return n, errors.Wrap(err, "encoding record")
		}
		n++
	}
}
