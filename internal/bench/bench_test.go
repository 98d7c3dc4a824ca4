package bench

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestComputeStats(t *testing.T) {
	s := ComputeStats([]time.Duration{3 * time.Second, time.Second, 2 * time.Second})

	if s.Min != time.Second {
		t.Errorf("Min = %v; want 1s", s.Min)
	}
	if s.Max != 3*time.Second {
		t.Errorf("Max = %v; want 3s", s.Max)
	}
	if s.Mean != 2*time.Second {
		t.Errorf("Mean = %v; want 2s", s.Mean)
	}

	if got := ComputeStats(nil); got != (Stats{}) {
		t.Errorf("empty stats = %+v; want zero", got)
	}
}

func TestRTF(t *testing.T) {
	if got := RTF(time.Second, 2*time.Second); got != 0.5 {
		t.Errorf("RTF = %v; want 0.5", got)
	}
	if got := RTF(time.Second, 0); got != 0 {
		t.Errorf("RTF with zero audio = %v; want 0", got)
	}
}

func TestAudioDuration(t *testing.T) {
	if got := AudioDuration(48000, 24000); got != 2*time.Second {
		t.Errorf("duration = %v; want 2s", got)
	}
	if got := AudioDuration(100, 0); got != 0 {
		t.Errorf("duration with zero rate = %v; want 0", got)
	}
}

func TestRunPerformsColdPlusWarm(t *testing.T) {
	calls := 0
	synth := func() ([]float32, error) {
		calls++
		return make([]float32, 24000), nil
	}

	var out bytes.Buffer
	results, err := Run(synth, 2, 24000, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if calls != 3 {
		t.Errorf("synth called %d times; want 3 (1 cold + 2 warm)", calls)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d; want 3", len(results))
	}
	if !results[0].Cold || results[1].Cold || results[2].Cold {
		t.Error("cold flag wrong")
	}
	if results[1].Audio != time.Second {
		t.Errorf("audio duration = %v; want 1s", results[1].Audio)
	}
	if !strings.Contains(out.String(), "run 0 (cold)") {
		t.Errorf("output missing cold run line:\n%s", out.String())
	}

	Report(results, &out)
	if !strings.Contains(out.String(), "warm runs: 2") {
		t.Errorf("report missing warm summary:\n%s", out.String())
	}
}

func TestRunPropagatesError(t *testing.T) {
	synth := func() ([]float32, error) { return nil, fmt.Errorf("boom") }

	if _, err := Run(synth, 1, 24000, nil); err == nil {
		t.Fatal("synth error swallowed")
	}
	if _, err := Run(func() ([]float32, error) { return nil, nil }, 0, 24000, nil); err == nil {
		t.Fatal("runs = 0 accepted")
	}
}
