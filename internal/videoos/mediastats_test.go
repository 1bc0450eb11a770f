// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package videoos

import (
	"io"
	"testing"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/logging"
)

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

func TestSumInt64(t *testing.T) {
	tests := []struct {
		name string
		a    *int64
		b    *int64
		want *int64
	}{
		{"both absent", nil, nil, nil},
		{"first present", i64(5), nil, i64(5)},
		{"second present", nil, i64(7), i64(7)},
		{"both present", i64(3), i64(4), i64(7)},
		{"zero is not absent", i64(0), nil, i64(0)},
		{"zero plus value", i64(0), i64(9), i64(9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SumInt64(tt.a, tt.b)
			switch {
			case got == nil && tt.want == nil:
			case got == nil || tt.want == nil:
				t.Errorf("SumInt64() = %v, want %v", got, tt.want)
			case *got != *tt.want:
				t.Errorf("SumInt64() = %d, want %d", *got, *tt.want)
			}
		})
	}
}

func TestSumInt64DoesNotAliasInputs(t *testing.T) {
	a := i64(5)
	got := SumInt64(a, nil)
	*got++
	if *a != 5 {
		t.Errorf("SumInt64 aliased its input: a = %d, want 5", *a)
	}
}

func TestSumFloat64(t *testing.T) {
	tests := []struct {
		name string
		a    *float64
		b    *float64
		want *float64
	}{
		{"both absent", nil, nil, nil},
		{"first present", f64(0.5), nil, f64(0.5)},
		{"second present", nil, f64(1.25), f64(1.25)},
		{"both present", f64(1.5), f64(2.25), f64(3.75)},
		{"zero is not absent", f64(0), nil, f64(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SumFloat64(tt.a, tt.b)
			switch {
			case got == nil && tt.want == nil:
			case got == nil || tt.want == nil:
				t.Errorf("SumFloat64() = %v, want %v", got, tt.want)
			case *got != *tt.want:
				t.Errorf("SumFloat64() = %g, want %g", *got, *tt.want)
			}
		})
	}
}

func TestAggregateMediaStats(t *testing.T) {
	entries := []MediaStatEntry{
		{
			MediaDirection: "RX", MediaType: "AUDIO",
			ActualBitRate: i64(64), Jitter: f64(2.5), PacketLoss: i64(3),
			PercentPacketLoss: f64(0.1), MediaAlgorithm: "AAC-LD",
		},
		{
			MediaDirection: "TX", MediaType: "AUDIO",
			ActualBitRate: i64(48), PacketLoss: i64(1), MediaAlgorithm: "AAC-LD",
		},
		{
			MediaDirection: "RX", MediaType: "VIDEO",
			ActualBitRate: i64(1920), Jitter: f64(1.0), PacketLoss: i64(12),
			PercentPacketLoss: f64(0.4), ActualFrameRate: f64(30),
			MediaAlgorithm: "H.264", MediaFormat: "1080p",
		},
		{
			MediaDirection: "TX", MediaType: "VIDEO",
			ActualBitRate: i64(1472), ActualFrameRate: f64(29.97),
			MediaAlgorithm: "H.264", MediaFormat: "720p",
		},
	}

	stats := AggregateMediaStats(entries, logging.NewTestLogger(io.Discard))

	if got := stats.Audio.BitRateRx; got == nil || *got != 64 {
		t.Errorf("Audio.BitRateRx = %v, want 64", got)
	}
	if got := stats.Audio.JitterRx; got == nil || *got != 2.5 {
		t.Errorf("Audio.JitterRx = %v, want 2.5", got)
	}
	if stats.Audio.Codec != "AAC-LD" {
		t.Errorf("Audio.Codec = %q, want AAC-LD", stats.Audio.Codec)
	}
	if stats.Video.FrameSizeRx != "1080p" || stats.Video.FrameSizeTx != "720p" {
		t.Errorf("Video frame sizes = (%q, %q), want (1080p, 720p)",
			stats.Video.FrameSizeRx, stats.Video.FrameSizeTx)
	}
	if got := stats.Video.FrameRateTx; got == nil || *got != 29.97 {
		t.Errorf("Video.FrameRateTx = %v, want 29.97", got)
	}

	// Rollups: audio + video.
	if got := stats.Call.TotalPacketLossRx; got == nil || *got != 15 {
		t.Errorf("Call.TotalPacketLossRx = %v, want 15", got)
	}
	if got := stats.Call.TotalPacketLossTx; got == nil || *got != 1 {
		t.Errorf("Call.TotalPacketLossTx = %v, want 1 (video TX loss absent)", got)
	}
	if got := stats.Call.PercentPacketLossRx; got == nil || *got != 0.5 {
		t.Errorf("Call.PercentPacketLossRx = %v, want 0.5", got)
	}
	if stats.Call.PercentPacketLossTx != nil {
		t.Errorf("Call.PercentPacketLossTx = %v, want nil (absent on both channels)",
			*stats.Call.PercentPacketLossTx)
	}
	if got := stats.Call.CallRateRx; got == nil || *got != 1984 {
		t.Errorf("Call.CallRateRx = %v, want 1984", got)
	}
	if got := stats.Call.CallRateTx; got == nil || *got != 1520 {
		t.Errorf("Call.CallRateTx = %v, want 1520", got)
	}
}

func TestAggregateMediaStatsSkipsUnknownTags(t *testing.T) {
	entries := []MediaStatEntry{
		{MediaDirection: "RX", MediaType: "CONTENT", ActualBitRate: i64(512)},
		{MediaDirection: "SIDEWAYS", MediaType: "AUDIO", ActualBitRate: i64(64)},
		{MediaDirection: "TX", MediaType: "AUDIO", ActualBitRate: i64(48)},
	}

	stats := AggregateMediaStats(entries, logging.NewTestLogger(io.Discard))

	if got := stats.Audio.BitRateTx; got == nil || *got != 48 {
		t.Errorf("Audio.BitRateTx = %v, want 48 (known record must survive)", got)
	}
	if stats.Audio.BitRateRx != nil {
		t.Errorf("Audio.BitRateRx = %v, want nil (unknown direction skipped)", *stats.Audio.BitRateRx)
	}
	if stats.Video.BitRateRx != nil {
		t.Errorf("Video.BitRateRx = %v, want nil (unknown media type skipped)", *stats.Video.BitRateRx)
	}
}

func TestAggregateMediaStatsEmpty(t *testing.T) {
	stats := AggregateMediaStats(nil, logging.NewTestLogger(io.Discard))

	if stats.Call.TotalPacketLossRx != nil || stats.Call.CallRateTx != nil {
		t.Error("empty input must produce absent rollups, not zeros")
	}
}

func TestApplyShared(t *testing.T) {
	var stats CallMediaStats
	stats.ApplyShared([]SharedStat{
		{Width: i64(1920), Height: i64(1080), Framerate: f64(15), Bitrate: i64(4096)},
		{Width: i64(640)}, // ignored: only the first record is meaningful
	})

	if got := stats.Content.FrameSizeTxWidth; got == nil || *got != 1920 {
		t.Errorf("Content.FrameSizeTxWidth = %v, want 1920", got)
	}
	if got := stats.Content.FrameSizeTxHeight; got == nil || *got != 1080 {
		t.Errorf("Content.FrameSizeTxHeight = %v, want 1080", got)
	}
	if got := stats.Content.FrameRateTx; got == nil || *got != 15 {
		t.Errorf("Content.FrameRateTx = %v, want 15", got)
	}
	if got := stats.Content.BitRateTx; got == nil || *got != 4096 {
		t.Errorf("Content.BitRateTx = %v, want 4096", got)
	}
}

func TestApplySharedEmpty(t *testing.T) {
	var stats CallMediaStats
	stats.ApplyShared(nil)
	if stats.Content.BitRateTx != nil {
		t.Error("empty shared stats must leave the content channel absent")
	}
}
