// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

/*
mediastats.go - Media Stats Aggregator

Routes the device's per-direction, per-media-kind leaf records into audio and
video channel buckets and derives call-level rollups. Every numeric is a
pointer because the device omits what a channel does not measure: "absent" and
"zero" are different answers, and the null-aware sums preserve that
distinction through aggregation.
*/

package videoos

import (
	"strings"

	"github.com/rs/zerolog"
)

// ChannelStats carries one media channel's per-direction metrics. Frame
// fields are populated for video only.
type ChannelStats struct {
	BitRateRx           *int64
	BitRateTx           *int64
	JitterRx            *float64
	JitterTx            *float64
	PacketLossRx        *int64
	PacketLossTx        *int64
	PercentPacketLossRx *float64
	PercentPacketLossTx *float64
	Codec               string

	FrameRateRx *float64
	FrameRateTx *float64
	FrameSizeRx string
	FrameSizeTx string
}

// ContentStats carries the content (screen share) channel's transmit
// metrics, sourced from the device-wide shared stats.
type ContentStats struct {
	FrameSizeTxWidth  *int64
	FrameSizeTxHeight *int64
	FrameRateTx       *float64
	BitRateTx         *int64
}

// CallStats is the call-level rollup across the audio and video channels.
type CallStats struct {
	CallID            string
	Protocol          string
	RequestedCallRate int

	TotalPacketLossRx   *int64
	TotalPacketLossTx   *int64
	PercentPacketLossRx *float64
	PercentPacketLossTx *float64
	CallRateRx          *int64
	CallRateTx          *int64
}

// CallMediaStats is the complete media view of one active call.
type CallMediaStats struct {
	Call    CallStats
	Audio   ChannelStats
	Video   ChannelStats
	Content ContentStats
}

// SumInt64 adds two optional integers without conflating absence with zero:
// both absent yields absent, one present yields that value, both present
// yields the arithmetic sum.
func SumInt64(a, b *int64) *int64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	default:
		v := *a + *b
		return &v
	}
}

// SumFloat64 is the floating-point variant of SumInt64.
func SumFloat64(a, b *float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	default:
		v := *a + *b
		return &v
	}
}

// AggregateMediaStats routes leaf records into channel buckets and computes
// the call-level rollups. Records with unrecognized direction or media-kind
// tags are skipped without failing the aggregation; newer firmware adds tags
// this code has no bucket for.
func AggregateMediaStats(entries []MediaStatEntry, logger zerolog.Logger) CallMediaStats {
	var stats CallMediaStats

	for i := range entries {
		entry := &entries[i]
		direction := strings.ToUpper(entry.MediaDirection)
		mediaType := strings.ToUpper(entry.MediaType)

		var channel *ChannelStats
		switch mediaType {
		case "AUDIO":
			channel = &stats.Audio
		case "VIDEO":
			channel = &stats.Video
		default:
			logger.Debug().Str("media_type", entry.MediaType).Str("media_direction", entry.MediaDirection).
				Msg("Skipping media stat with unrecognized media type")
			continue
		}

		switch direction {
		case "RX":
			channel.BitRateRx = entry.ActualBitRate
			channel.JitterRx = entry.Jitter
			channel.PacketLossRx = entry.PacketLoss
			channel.PercentPacketLossRx = entry.PercentPacketLoss
			if mediaType == "VIDEO" {
				channel.FrameRateRx = entry.ActualFrameRate
				channel.FrameSizeRx = entry.MediaFormat
			}
		case "TX":
			channel.BitRateTx = entry.ActualBitRate
			channel.JitterTx = entry.Jitter
			channel.PacketLossTx = entry.PacketLoss
			channel.PercentPacketLossTx = entry.PercentPacketLoss
			if mediaType == "VIDEO" {
				channel.FrameRateTx = entry.ActualFrameRate
				channel.FrameSizeTx = entry.MediaFormat
			}
		default:
			logger.Debug().Str("media_type", entry.MediaType).Str("media_direction", entry.MediaDirection).
				Msg("Skipping media stat with unrecognized direction")
			continue
		}

		if entry.MediaAlgorithm != "" {
			channel.Codec = entry.MediaAlgorithm
		}
	}

	stats.Call.TotalPacketLossRx = SumInt64(stats.Audio.PacketLossRx, stats.Video.PacketLossRx)
	stats.Call.TotalPacketLossTx = SumInt64(stats.Audio.PacketLossTx, stats.Video.PacketLossTx)
	stats.Call.PercentPacketLossRx = SumFloat64(stats.Audio.PercentPacketLossRx, stats.Video.PercentPacketLossRx)
	stats.Call.PercentPacketLossTx = SumFloat64(stats.Audio.PercentPacketLossTx, stats.Video.PercentPacketLossTx)
	stats.Call.CallRateRx = SumInt64(stats.Video.BitRateRx, stats.Audio.BitRateRx)
	stats.Call.CallRateTx = SumInt64(stats.Video.BitRateTx, stats.Audio.BitRateTx)

	return stats
}

// ApplyShared folds the device-wide shared stats into the content channel.
// Only the first record is meaningful; the device reports one content
// stream.
func (s *CallMediaStats) ApplyShared(vars []SharedStat) {
	if len(vars) == 0 {
		return
	}
	first := vars[0]
	s.Content.FrameSizeTxWidth = first.Width
	s.Content.FrameSizeTxHeight = first.Height
	s.Content.FrameRateTx = first.Framerate
	s.Content.BitRateTx = first.Bitrate
}
