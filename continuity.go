package roadquality

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roadsense/roadquality/fitmsg"
)

// checkPositionContinuity is a diagnostic-only pass over the extracted
// positions and the full message list. It never fails and never mutates; it
// reports how much of the recording the positions actually cover and where
// the per-sample timeline has holes.
func checkPositionContinuity(messages []fitmsg.Message, positions []*Position, log *zap.Logger) {
	if len(positions) < 2 {
		log.Warn("no complete positions in track")
		return
	}

	startTS := positions[0].Timestamp
	endTS := positions[len(positions)-1].Timestamp
	log.Info("parsed track",
		zap.Time("start", startTS),
		zap.Time("end", endTS),
		zap.Duration("span", endTS.Sub(startTS)),
		zap.Int("positions", len(positions)))

	checkStartEndOffsets(messages, startTS, endTS, log)

	type interval struct {
		start, end time.Time
	}
	var intervals []interval
	var intervalStart time.Time
	outOfOrder := 0
	for i := 0; i+1 < len(positions); i++ {
		p1, p2 := positions[i], positions[i+1]
		if p2.Timestamp.Before(p1.Timestamp) {
			outOfOrder++
		}
		if intervalStart.IsZero() {
			intervalStart = p1.Timestamp
		}
		// Adjacent samples are at most one second apart; more is a gap.
		if p1.Timestamp.Add(time.Second).Before(p2.Timestamp) {
			intervals = append(intervals, interval{start: intervalStart, end: p1.Timestamp})
			intervalStart = p2.Timestamp
		}
	}
	intervals = append(intervals, interval{start: intervalStart, end: endTS})

	if outOfOrder > 0 {
		log.Warn("positions are not in timestamp order", zap.Int("pairs", outOfOrder))
	}

	var discontinuous time.Duration
	for i := 0; i+1 < len(intervals); i++ {
		discontinuous += intervals[i+1].start.Sub(intervals[i].end)
	}
	if discontinuous > 0 {
		fraction := float64(discontinuous) / float64(endTS.Sub(startTS))
		log.Info("track has discontinuities",
			zap.Int("count", len(intervals)-1),
			zap.Duration("total", discontinuous),
			zap.String("of_total", fmt.Sprintf("%.2f%%", fraction*100)))
	}
}

// checkStartEndOffsets compares the position span against the timestamp span
// of the raw message stream, which reveals lead-in and trail-out telemetry
// that produced no positions.
func checkStartEndOffsets(messages []fitmsg.Message, startTS, endTS time.Time, log *zap.Logger) {
	var messagesStart, messagesEnd time.Time
	for i := range messages {
		if ts, ok := messages[i].Time("timestamp"); ok {
			messagesStart = ts
			break
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if ts, ok := messages[i].Time("timestamp"); ok {
			messagesEnd = ts
			break
		}
	}
	if messagesStart.IsZero() || messagesEnd.IsZero() {
		return
	}

	startOffset := startTS.Sub(messagesStart)
	endOffset := messagesEnd.Sub(endTS)
	if startOffset != 0 || endOffset != 0 {
		log.Info("messages span exceeds position span",
			zap.Duration("start_offset", startOffset),
			zap.Duration("end_offset", endOffset))
	}
}
