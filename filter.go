package erpcache

import (
	"fmt"
	"strings"
)

// filterRecords applies the class search: a record matches when the term
// appears, case-insensitively, in any one of the class's search fields
// (OR semantics). Non-string field values are matched via their string form.
func filterRecords(class Class, recs []Record, term string) []Record {
	needle := strings.ToLower(term)
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if matchesRecord(class, rec, needle) {
			out = append(out, rec)
		}
	}
	return out
}

func matchesRecord(class Class, rec Record, needle string) bool {
	for _, field := range class.SearchFields {
		v, ok := rec[field]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}
