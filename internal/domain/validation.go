package domain

import (
	"sort"
	"strings"
)

// ValidationErrors 字段级校验错误（field → message list）
// This is data, not a transport failure: the mutation endpoints return it
// when a partial update is rejected, and the edit session renders it next
// to the affected inputs without discarding the draft.
type ValidationErrors map[string][]string

// Empty reports whether no field carries a message.
func (v ValidationErrors) Empty() bool { return len(v) == 0 }

// Fields returns the affected field names in a stable order.
func (v ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, f := range v.Fields() {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f)
		b.WriteString(": ")
		b.WriteString(strings.Join(v[f], ", "))
	}
	return b.String()
}
