// Package compare proves that a drained collection is the same set of records that was
// generated, independent of delivery order.
package compare

import (
	"fmt"
	"slices"
	"strings"

	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/dataset"
)

type Field string

const (
	FieldKey       Field = "key"
	FieldAmount    Field = "amount"
	FieldGroup     Field = "group"
	FieldLabel     Field = "label"
	FieldTimestamp Field = "timestamp"
)

// Optional lists the fields that can be compared in addition to key and amount.
var Optional = []Field{FieldGroup, FieldLabel, FieldTimestamp}

type Options struct {
	// Fields enables extra comparisons beyond key and amount.
	Fields []Field
}

// ParseFields reads a comma separated list such as "group,label".
func ParseFields(raw string) ([]Field, error) {
	var fields []Field
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		f := Field(part)
		if !slices.Contains(Optional, f) {
			return nil, fmt.Errorf("unknown compare field %q (want one of group, label, timestamp)", part)
		}
		if !slices.Contains(fields, f) {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

type Mismatch struct {
	Key      string `json:"key"`
	Field    Field  `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

type Report struct {
	CountMatch    bool       `json:"count_match"`
	ExpectedCount int        `json:"expected_count"`
	ActualCount   int        `json:"actual_count"`
	Mismatches    []Mismatch `json:"mismatches"`
	Verdict       bool       `json:"verdict"`
}

// Compare pairs both collections by key after sorting copies of them. A length difference
// ends the comparison immediately with no per-record mismatches. When the paired keys
// differ, no value fields of that pair are compared.
func Compare(expected, actual []dataset.Record, opts Options) Report {
	rep := Report{
		ExpectedCount: len(expected),
		ActualCount:   len(actual),
		Mismatches:    []Mismatch{},
	}
	if len(expected) != len(actual) {
		return rep
	}
	rep.CountMatch = true

	exp := sortedByKey(expected)
	act := sortedByKey(actual)

	for i := range exp {
		e, a := exp[i], act[i]
		if e.Key != a.Key {
			rep.Mismatches = append(rep.Mismatches, Mismatch{Key: e.Key, Field: FieldKey, Expected: e.Key, Actual: a.Key})
			continue
		}
		if !e.Amount.Equal(a.Amount) {
			rep.Mismatches = append(rep.Mismatches, Mismatch{
				Key: e.Key, Field: FieldAmount,
				Expected: e.Amount.StringFixed(2), Actual: a.Amount.StringFixed(2),
			})
		}
		for _, f := range opts.Fields {
			ev, av := fieldValue(e, f), fieldValue(a, f)
			if ev != av {
				rep.Mismatches = append(rep.Mismatches, Mismatch{Key: e.Key, Field: f, Expected: ev, Actual: av})
			}
		}
	}

	rep.Verdict = len(rep.Mismatches) == 0
	return rep
}

func sortedByKey(in []dataset.Record) []dataset.Record {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b dataset.Record) int {
		return strings.Compare(a.Key, b.Key)
	})
	return out
}

func fieldValue(r dataset.Record, f Field) string {
	switch f {
	case FieldGroup:
		return r.Group
	case FieldLabel:
		return r.Label
	case FieldTimestamp:
		return r.Timestamp
	}
	return ""
}

// Summary renders a one-line verdict used in logs and failure details.
func (r Report) Summary() string {
	if !r.CountMatch {
		return fmt.Sprintf("count mismatch: expected %d records, got %d", r.ExpectedCount, r.ActualCount)
	}
	if r.Verdict {
		return fmt.Sprintf("%d records match", r.ExpectedCount)
	}
	first := r.Mismatches[0]
	return fmt.Sprintf("%d mismatches across %d records (first: %s %s expected %q got %q)",
		len(r.Mismatches), r.ExpectedCount, first.Key, first.Field, first.Expected, first.Actual)
}
