package threat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/trustfabric/vaultcore/eventsink"
)

var errRandShort = errors.New("threat: short read from crypto/rand")

func newInsightID() (string, error) {
	var b [16]byte
	n, err := rand.Read(b[:])
	if err != nil {
		return "", err
	}
	if n != len(b) {
		return "", errRandShort
	}
	return "ins_" + hex.EncodeToString(b[:]), nil
}

// Engine is the threat and anomaly engine: it ingests canonical security
// events, runs the fixed real-time detector pipeline, scores risk, and
// forwards every insight to EventSink and, above
// BroadcastRiskThreshold, to an external Broadcaster.
type Engine struct {
	buffer    Buffer
	baselines *MemoryBaselineStore
	sink      eventsink.EventSink
	broadcast Broadcaster
	metrics   *Metrics
	dedupe    *Deduper

	clock func() time.Time
}

// NewEngine constructs an Engine. broadcast and metrics may be nil.
func NewEngine(buffer Buffer, baselines *MemoryBaselineStore, sink eventsink.EventSink, broadcast Broadcaster, metrics *Metrics) *Engine {
	if baselines == nil {
		baselines = NewMemoryBaselineStore()
	}
	return &Engine{
		buffer:    buffer,
		baselines: baselines,
		sink:      sink,
		broadcast: broadcast,
		metrics:   metrics,
		dedupe:    NewDeduper(DedupeWindow),
		clock:     time.Now,
	}
}

// Close stops the Engine's background dedupe-cleanup goroutine.
func (e *Engine) Close() error {
	return e.dedupe.Close()
}

// entityID picks the entity an event's baseline/ring is keyed on: the
// actor when present (the normal case), falling back to the resource,
// since baselines and rings are keyed per entity.
func entityID(evt *eventsink.Event) string {
	if evt.ActorID != nil && *evt.ActorID != "" {
		return *evt.ActorID
	}
	if evt.ResourceID != nil && *evt.ResourceID != "" {
		return *evt.ResourceID
	}
	return "unknown"
}

// Ingest runs evt through the real-time detector pipeline and risk
// scoring, returning every Insight produced (detector insights plus, if
// the score crosses HighRiskThreshold, a risk-score insight). Per
// the per-entity ordering guarantee, callers MUST serialize Ingest calls for
// the same entity; ingestion across different entities may run
// concurrently.
func (e *Engine) Ingest(ctx context.Context, evt *eventsink.Event) ([]*Insight, error) {
	id := entityID(evt)

	evicted, err := e.buffer.Append(ctx, id, evt)
	if err != nil {
		return nil, err
	}
	if evicted {
		e.metrics.recordOverrun(id)
	}

	baseline, ok, err := e.baselines.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metrics.recordBaselineMiss(id)
		baseline = nil
	}

	dc := &detectionContext{ctx: ctx, buffer: e.buffer, baseline: baseline, entityID: id, evt: evt}

	var insights []*Insight
	for _, d := range detectors {
		insight, err := d(dc)
		if err != nil {
			return insights, err
		}
		if insight == nil {
			continue
		}
		insight.EntityID = id
		insight.DetectedAt = e.clock()
		insight.ExpiresAt = insight.DetectedAt.Add(InsightTTL)
		// Dedupe by (actor, pattern_id, 1h window): an identical event
		// repeated within the hour re-triggers the same detector every
		// time, but must not re-emit the same insight.
		if e.dedupe.Seen(id, insight.Kind, insight.DetectedAt) {
			continue
		}
		if insight.InsightID == "" {
			iid, err := newInsightID()
			if err != nil {
				return insights, err
			}
			insight.InsightID = iid
		}
		insights = append(insights, insight)
	}

	isNewIP := evt.SourceIP != nil && *evt.SourceIP != "" && (baseline == nil || !baseline.SeenIP(*evt.SourceIP))
	score := ScoreEvent(evt, isNewIP)
	if score >= HighRiskThreshold {
		detectedAt := e.clock()
		if !e.dedupe.Seen(id, InsightRiskScore, detectedAt) {
			iid, err := newInsightID()
			if err != nil {
				return insights, err
			}
			riskInsight := &Insight{
				InsightID:   iid,
				EntityID:    id,
				Kind:        InsightRiskScore,
				Severity:    severityForRisk(score),
				Title:       "Elevated Event Risk Score",
				Confidence:  score,
				RiskScore:   score,
				Description: "event risk score crossed the reporting threshold",
				EventIDs:    []string{evt.EventID},
				Recommendations: []string{
					"Review the contributing risk factors before approving further operations by this entity.",
				},
				DetectedAt: detectedAt,
				ExpiresAt:  detectedAt.Add(InsightTTL),
				Broadcast:  score >= BroadcastRiskThreshold,
			}
			insights = append(insights, riskInsight)
		}
	}

	for _, insight := range insights {
		e.metrics.recordInsight(string(insight.Kind), string(insight.Severity))
		if err := e.emit(ctx, insight); err != nil {
			return insights, err
		}
		if insight.Broadcast && e.broadcast != nil {
			if err := e.broadcast.Broadcast(ctx, insight); err != nil {
				return insights, err
			}
			if e.metrics != nil {
				e.metrics.BroadcastsTotal.Inc()
			}
		}
	}

	return insights, nil
}

func severityForRisk(score float64) eventsink.Severity {
	switch {
	case score >= 0.9:
		return eventsink.SeverityCritical
	case score >= BroadcastRiskThreshold:
		return eventsink.SeverityHigh
	default:
		return eventsink.SeverityMedium
	}
}

func (e *Engine) emit(ctx context.Context, insight *Insight) error {
	if e.sink == nil {
		return nil
	}
	evt := eventsink.NewEvent("threat."+string(insight.Kind), insight.Severity, eventsink.OutcomeSuccess)
	entity := insight.EntityID
	evt.ActorID = &entity
	evt.Attributes = map[string]string{
		"insight_id": insight.InsightID,
		"confidence": strconv.FormatFloat(insight.Confidence, 'f', 3, 64),
	}
	_, err := e.sink.Append(ctx, "threat", nil, evt)
	return err
}
