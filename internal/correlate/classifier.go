package correlate

import (
	"sort"

	"firestige.xyz/proclat/internal/core"
	"firestige.xyz/proclat/internal/identity"
	"firestige.xyz/proclat/internal/payload"
	"firestige.xyz/proclat/internal/signature"
)

// ClassifyStats counts what happened to the records of one classification run.
type ClassifyStats struct {
	Records        int // Records seen
	DecodeFailures int // Payload present but no text came out
	Unmatched      int // No signature fired
	Ignored        int // Claimed by an ignore signature
	Events         int // Classified events produced
}

// Add accumulates o into s.
func (s *ClassifyStats) Add(o ClassifyStats) {
	s.Records += o.Records
	s.DecodeFailures += o.DecodeFailures
	s.Unmatched += o.Unmatched
	s.Ignored += o.Ignored
	s.Events += o.Events
}

// Classifier turns the records of one trace into classified events of one
// profile. The allocator must be shared by every classifier of a job so
// that fallback counters stay single-writer per trace.
type Classifier struct {
	profile    *signature.Profile
	normalizer *identity.Normalizer
}

// NewClassifier binds a compiled profile to an identity allocator.
func NewClassifier(profile *signature.Profile, allocator *identity.Allocator) *Classifier {
	return &Classifier{
		profile:    profile,
		normalizer: identity.NewNormalizer(profile.Identity, allocator),
	}
}

// Profile returns the profile the classifier matches against.
func (c *Classifier) Profile() *signature.Profile { return c.profile }

// Classify processes records in ascending (sequence, timestamp) order, which
// is also the order fallback counters are handed out in. The input slice is
// not modified.
func (c *Classifier) Classify(records []*core.Record) ([]*core.ClassifiedEvent, ClassifyStats) {
	ordered := make([]*core.Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		return a.Timestamp < b.Timestamp
	})

	var (
		events []*core.ClassifiedEvent
		stats  ClassifyStats
	)
	for _, r := range ordered {
		stats.Records++
		matched := false

		if c.profile.HasFields() {
			for _, view := range c.profile.Views(r.Fields) {
				idx, ok := c.profile.MatchFields(view)
				if !ok {
					continue
				}
				matched = true
				if ev := c.emit(r, idx, view.NativeId, "", &stats); ev != nil {
					events = append(events, ev)
				}
			}
		}

		if c.profile.HasText() && r.HasPayload() {
			text := payload.RecordText(r)
			if text == "" {
				stats.DecodeFailures++
			} else if idx, ok := c.profile.MatchText(text); ok {
				matched = true
				nativeId := ""
				if c.profile.NativeIdField != "" {
					nativeId, _ = r.Fields.First(c.profile.NativeIdField)
				}
				if ev := c.emit(r, idx, nativeId, text, &stats); ev != nil {
					events = append(events, ev)
				}
			}
		}

		if !matched {
			stats.Unmatched++
		}
	}
	return events, stats
}

func (c *Classifier) emit(r *core.Record, idx int, nativeId, text string, stats *ClassifyStats) *core.ClassifiedEvent {
	sig := &c.profile.Signatures[idx]
	if sig.Role == core.RoleIgnore {
		stats.Ignored++
		return nil
	}
	id := c.normalizer.Resolve(identity.Candidate{
		Record:    r,
		Procedure: c.profile.Procedure,
		Signature: idx,
		NativeId:  nativeId,
		Text:      text,
	})
	stats.Events++
	return &core.ClassifiedEvent{
		Record:        r,
		Identity:      id,
		Procedure:     c.profile.Procedure,
		Role:          sig.Role,
		Signature:     idx,
		SignatureName: sig.Name,
		Text:          text,
		Order:         stats.Events - 1,
		Policy:        c.profile.StartPolicy,
	}
}
