/*************************************************************************
* Copyright 2017 Gravwell, Inc. All rights reserved.
* Contact: <legal@gravwell.io>
*
* This software may be modified and distributed under the terms of the
* BSD 2-clause license. See the LICENSE file for details.
**************************************************************************/

package corelog

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

type buf struct {
	*bytes.Buffer
}

func (b buf) Close() error { return nil }

func newTestLogger() (*Logger, *buf) {
	b := &buf{Buffer: &bytes.Buffer{}}
	return New(b), b
}

func TestLevelFiltering(t *testing.T) {
	lgr, b := newTestLogger()
	if err := lgr.SetLevel(WARN); err != nil {
		t.Fatal(err)
	}
	if err := lgr.Infof("should not appear"); err != nil {
		t.Fatal(err)
	}
	if err := lgr.Warnf("should appear"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(b.String(), "should not appear") {
		t.Fatal("INFO line was emitted below WARN threshold")
	}
	if !strings.Contains(b.String(), "should appear") {
		t.Fatal("WARN line was not emitted")
	}
}

func TestStructuredFields(t *testing.T) {
	lgr, b := newTestLogger()
	if err := lgr.Info("hello", KV("task", "ffmpeg"), KVErr(io.EOF)); err != nil {
		t.Fatal(err)
	}
	out := b.String()
	if !strings.Contains(out, "task=\"ffmpeg\"") && !strings.Contains(out, "task=ffmpeg") {
		t.Fatalf("missing task field: %s", out)
	}
}

func TestKVLoggerCarriesFields(t *testing.T) {
	lgr, b := newTestLogger()
	kvl := NewLoggerWithKV(lgr, KV("task", "t0"))
	if err := kvl.Info("running"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), "t0") {
		t.Fatalf("expected carried KV in output: %s", b.String())
	}
}

func TestInvalidLevel(t *testing.T) {
	lgr, _ := newTestLogger()
	if err := lgr.SetLevel(Level(99)); err != ErrInvalidLevel {
		t.Fatalf("expected ErrInvalidLevel, got %v", err)
	}
}

func TestCloseThenWriteFails(t *testing.T) {
	lgr, _ := newTestLogger()
	if err := lgr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := lgr.Infof("after close"); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
}
