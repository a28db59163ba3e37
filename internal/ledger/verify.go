package ledger

import "fmt"

// ViolationKind names the invariant a record broke.
type ViolationKind string

const (
	ViolationGenesis  ViolationKind = "genesis"
	ViolationSequence ViolationKind = "sequence"
	ViolationLinkage  ViolationKind = "linkage"
	ViolationDigest   ViolationKind = "digest"
)

// Violation describes the first point at which the chain diverges.
type Violation struct {
	Position int           `json:"position"`
	Sequence uint64        `json:"sequence_number"`
	Kind     ViolationKind `json:"kind"`
	Detail   string        `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s violation at position %d: %s", v.Kind, v.Position, v.Detail)
}

// Report is the result of an integrity check. It is a diagnostic, not an error.
type Report struct {
	Valid     bool       `json:"valid"`
	Checked   int        `json:"checked"`
	Head      string     `json:"head,omitempty"`
	Violation *Violation `json:"violation,omitempty"`
}

// VerifyRecords walks records from the genesis position and returns the first
// violation. The stored link of every record is compared against a freshly
// computed digest; nothing is modified.
func VerifyRecords(records []*Record) Report {
	if len(records) == 0 {
		return Report{Violation: &Violation{Kind: ViolationGenesis, Detail: "ledger has no genesis record"}}
	}

	fail := func(i int, kind ViolationKind, format string, args ...any) Report {
		return Report{
			Checked: i,
			Violation: &Violation{
				Position: i,
				Sequence: records[i].SequenceNumber,
				Kind:     kind,
				Detail:   fmt.Sprintf(format, args...),
			},
		}
	}

	for i, curr := range records {
		if curr.SequenceNumber != uint64(i) {
			return fail(i, ViolationSequence, "sequence number %d does not match position", curr.SequenceNumber)
		}

		if i == 0 {
			if curr.PreviousLink != GenesisPrevLink {
				return fail(i, ViolationGenesis, "genesis previous link is %q", curr.PreviousLink)
			}
			if curr.ActorRole != RoleNetwork || curr.SubjectID != GenesisSubject {
				return fail(i, ViolationGenesis, "genesis record has role %q and subject %q", curr.ActorRole, curr.SubjectID)
			}
		} else if prev := records[i-1]; curr.PreviousLink != prev.Link {
			return fail(i, ViolationLinkage, "previous link %s does not match link %s of record %d",
				short(curr.PreviousLink), short(prev.Link), prev.SequenceNumber)
		}

		want, err := Digest(curr)
		if err != nil {
			return fail(i, ViolationDigest, "cannot recompute digest: %v", err)
		}
		if curr.Link != want {
			return fail(i, ViolationDigest, "stored link %s does not match computed %s", short(curr.Link), short(want))
		}
	}

	return Report{Valid: true, Checked: len(records), Head: records[len(records)-1].Link}
}

func short(link string) string {
	if len(link) > 12 {
		return link[:12]
	}
	return link
}
