package kafka

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/statbase/etl/formats"
)

type sliceSource struct {
	recs []interface{}
	i    int
}

func (s *sliceSource) Record() (interface{}, error) {
	if s.i >= len(s.recs) {
		return nil, io.EOF
	}
	rec := s.recs[s.i]
	s.i++
	return rec, nil
}

func TestDrain(t *testing.T) {
	src := &sliceSource{recs: []interface{}{
		map[string]interface{}{"station": "a1", "pm25": 12.5},
		map[string]interface{}{"station": "b2", "pm25": 31.0},
	}}
	buf := &bytes.Buffer{}
	n, err := Drain(src, buf)
	if err != nil {
		t.Fatalf("draining: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 records, got %d", n)
	}
	if len(strings.Split(strings.TrimSpace(buf.String()), "\n")) != 2 {
		t.Fatalf("expected 2 json lines, got %q", buf.String())
	}

	// a drained snapshot parses back into a table
	tbl, err := formats.ReadJSONL(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("parsing drained output: %v", err)
	}
	if tbl.Len() != 2 || !tbl.HasColumn("station") || !tbl.HasColumn("pm25") {
		t.Fatalf("unexpected table shape: %v", tbl.Columns())
	}
}

func TestRunRequiresTopics(t *testing.T) {
	m := NewMain()
	m.Topics = nil
	if err := m.Run(); err == nil {
		t.Fatalf("expected error for empty topic list")
	}
}

type failingSource struct{}

func (failingSource) Record() (interface{}, error) {
	return nil, errors.New("broker gone")
}

func TestDrainSourceError(t *testing.T) {
	n, err := Drain(failingSource{}, &bytes.Buffer{})
	if err == nil {
		t.Fatalf("expected source error")
	}
	if n != 0 {
		t.Fatalf("no records should be counted, got %d", n)
	}
}
