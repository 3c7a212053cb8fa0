package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestJSONBMarshal(t *testing.T) {
	j := JSONB{
		"provenance": []string{"runway", "pexels"},
		"stage":      "completed",
	}

	data, err := j.Value()
	if err != nil {
		t.Fatalf("failed to marshal JSONB: %v", err)
	}

	if data == nil {
		t.Fatal("expected non-nil data")
	}

	// Verify it's valid JSON
	var result map[string]interface{}
	if err := json.Unmarshal(data.([]byte), &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["stage"] != "completed" {
		t.Errorf("expected stage=completed, got %v", result["stage"])
	}
}

func TestJSONBScan(t *testing.T) {
	jsonData := []byte(`{"kind": "video", "duration_sec": 10}`)

	var j JSONB
	if err := j.Scan(jsonData); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	if j["kind"] != "video" {
		t.Errorf("expected kind=video, got %v", j["kind"])
	}

	if j["duration_sec"].(float64) != 10 {
		t.Errorf("expected duration_sec=10, got %v", j["duration_sec"])
	}
}

func TestJobStageIsTerminal(t *testing.T) {
	tests := map[JobStage]bool{
		JobStagePending:    false,
		JobStageProcessing: false,
		JobStageCompleted:  true,
		JobStageFailed:     true,
	}

	for stage, want := range tests {
		if got := stage.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", stage, got, want)
		}
	}
}

func TestJobRecordCloneIsDeep(t *testing.T) {
	started := time.Now()
	eta := 30
	msg := "boom"
	url := "https://cdn.example/v.mp4"
	rec := JobRecord{
		ID:                        "job-1",
		StartedAt:                 &started,
		EstimatedSecondsRemaining: &eta,
		Error:                     &msg,
		Result: &ArtifactDescriptor{
			Path:       "/tmp/v.mp4",
			URL:        &url,
			Provenance: []ProviderID{ProviderPexels},
			Warnings:   []string{"segment 2 dropped"},
		},
	}

	clone := rec.Clone()
	*clone.EstimatedSecondsRemaining = 99
	*clone.Error = "changed"
	*clone.Result.URL = "changed"
	clone.Result.Provenance[0] = ProviderRunway
	clone.Result.Warnings[0] = "changed"

	if *rec.EstimatedSecondsRemaining != 30 {
		t.Errorf("eta mutated through clone: %d", *rec.EstimatedSecondsRemaining)
	}
	if *rec.Error != "boom" {
		t.Errorf("error mutated through clone: %s", *rec.Error)
	}
	if *rec.Result.URL != url {
		t.Errorf("url mutated through clone: %s", *rec.Result.URL)
	}
	if rec.Result.Provenance[0] != ProviderPexels {
		t.Errorf("provenance mutated through clone: %v", rec.Result.Provenance)
	}
	if rec.Result.Warnings[0] != "segment 2 dropped" {
		t.Errorf("warnings mutated through clone: %v", rec.Result.Warnings)
	}
}

func TestSegmentPlanTotalDuration(t *testing.T) {
	plan := SegmentPlan{Segments: []Segment{
		{SubPrompt: "intro", TargetDuration: 3},
		{SubPrompt: "main", TargetDuration: 9.5},
	}}

	if got := plan.TotalDuration(); got != 12.5 {
		t.Errorf("expected 12.5, got %v", got)
	}
}
