package ledger_test

import (
	"bytes"
	"fmt"
	"reflect"
	"testing"

	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var propertySubjects = []string{"PRD-A", "PRD-B", "PRD-C", "PRD-D"}

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 60
	return parameters
}

// buildLedger appends one record per pick, cycling roles so every
// caller-usable role appears.
func buildLedger(picks []int, names []string) (*ledger.Store, error) {
	s, err := ledger.Open(ctx, ledger.NewMemoryBackend(), ledger.WithClock(steppingClock()))
	if err != nil {
		return nil, err
	}
	for i, p := range picks {
		name := "actor"
		if i < len(names) {
			name = names[i]
		}
		role := ledger.Roles[i%len(ledger.Roles)]
		_, err := s.Append(ctx, ledger.AppendInput{
			SubjectID:  propertySubjects[p],
			ActorRole:  role,
			ActorName:  name,
			Location:   fmt.Sprintf("loc-%d", i),
			Status:     ledger.StatusesFor(role)[0],
			Attributes: ledger.Attributes{"step": i, "name": name},
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// TestProperty_chainLinkage checks that any ledger built through Append
// satisfies the linkage and digest invariants at every position.
func TestProperty_chainLinkage(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("every record links to its predecessor and hashes to its link", prop.ForAll(
		func(picks []int, names []string) bool {
			s, err := buildLedger(picks, names)
			if err != nil {
				return false
			}
			records := s.Records()
			for i, r := range records {
				if r.SequenceNumber != uint64(i) {
					return false
				}
				if i > 0 && r.PreviousLink != records[i-1].Link {
					return false
				}
				d, err := ledger.Digest(r)
				if err != nil || d != r.Link {
					return false
				}
			}
			return s.Verify().Valid
		},
		gen.SliceOf(gen.IntRange(0, len(propertySubjects)-1)),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestProperty_appendOnly checks that one append grows the sequence by one
// and leaves every earlier record untouched.
func TestProperty_appendOnly(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("append never rewrites history", prop.ForAll(
		func(picks []int, extra int) bool {
			s, err := buildLedger(picks, nil)
			if err != nil {
				return false
			}
			before := s.Records()
			if _, err := s.Append(ctx, producerInput(propertySubjects[extra])); err != nil {
				return false
			}
			after := s.Records()
			if len(after) != len(before)+1 {
				return false
			}
			for i := range before {
				if before[i].SequenceNumber != after[i].SequenceNumber || before[i].Link != after[i].Link {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(propertySubjects)-1)),
		gen.IntRange(0, len(propertySubjects)-1),
	))

	properties.TestingRun(t)
}

// TestProperty_digestStableAcrossSerialisation checks that decoding the
// persisted form yields identical attributes and re-hashes to the stored
// links, with nested objects, arrays and numbers in the payload.
func TestProperty_digestStableAcrossSerialisation(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("digest and attributes survive encode/decode", prop.ForAll(
		func(attrs, inner map[string]string, n int, f float64, location string) bool {
			s, err := ledger.Open(ctx, ledger.NewMemoryBackend(), ledger.WithClock(steppingClock()))
			if err != nil {
				return false
			}
			payload := ledger.Attributes{}
			for k, v := range attrs {
				payload[k] = v
			}
			nested := map[string]any{}
			for k, v := range inner {
				nested[k] = v
			}
			payload["nested"] = map[string]any{
				"inner": nested,
				"list":  []any{n, f, location, map[string]any{"n": n}},
			}
			payload["count"] = n
			rec, err := s.Append(ctx, ledger.AppendInput{
				SubjectID:  "PRD-A",
				ActorRole:  ledger.RoleProducer,
				Location:   location,
				Status:     ledger.StatusCreated,
				Attributes: payload,
			})
			if err != nil {
				return false
			}

			// The caller's nested values are not part of the record.
			nested["late"] = "edit"
			if !s.Verify().Valid {
				return false
			}

			var buf bytes.Buffer
			if err := s.Export(&buf); err != nil {
				return false
			}
			decoded, err := ledger.DecodeRecords(&buf)
			if err != nil || len(decoded) != 2 {
				return false
			}
			if !reflect.DeepEqual(decoded[1].Attributes, rec.Attributes) || decoded[1].Location != location {
				return false
			}
			again, err := ledger.Digest(decoded[1])
			if err != nil {
				return false
			}
			first, err := ledger.Digest(rec)
			return err == nil && again == rec.Link && first == rec.Link
		},
		gen.MapOf(gen.AlphaString(), gen.AnyString()),
		gen.MapOf(gen.AlphaString(), gen.AnyString()),
		gen.Int(),
		gen.Float64Range(-1e9, 1e9),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestProperty_subjectPartition checks that journeys of distinct subjects
// partition the appended records exactly.
func TestProperty_subjectPartition(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("journeys partition the non-genesis records", prop.ForAll(
		func(picks []int) bool {
			s, err := buildLedger(picks, nil)
			if err != nil {
				return false
			}
			seen := make(map[uint64]bool)
			for _, sub := range propertySubjects {
				var last uint64
				for _, r := range s.Journey(sub) {
					if r.SubjectID != sub || seen[r.SequenceNumber] || r.SequenceNumber <= last {
						return false
					}
					seen[r.SequenceNumber] = true
					last = r.SequenceNumber
				}
			}
			return len(seen) == len(picks) && len(s.Journey("unknown-id")) == 0
		},
		gen.SliceOf(gen.IntRange(0, len(propertySubjects)-1)),
	))

	properties.TestingRun(t)
}
