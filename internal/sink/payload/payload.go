// Package payload renders error buckets into outbound notification messages,
// enforcing the sink's size limit with truncation and a simplified fallback.
package payload

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"errmon/internal/aggregator"
	"errmon/internal/events"
)

// stackReserveFraction of the body budget is held back for the stack-trace
// section when one is present.
const stackReserveFraction = 2

// Field is one labeled value attached to a notification.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Message is a rendered notification ready for delivery.
type Message struct {
	DeliveryID  string    `json:"delivery_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Fields      []Field   `json:"fields,omitempty"`
	Severity    string    `json:"severity"`
	Category    string    `json:"category"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
}

// Length is the rendered size counted against the sink's limit.
func (m *Message) Length() int {
	n := len(m.Title) + len(m.Body) + len(m.Fingerprint)
	for _, f := range m.Fields {
		n += len(f.Title) + len(f.Value)
	}
	return n
}

// Build renders a bucket into a Message no longer than maxLength. When even
// the truncated full form exceeds the limit, a simplified fallback (title,
// truncated message, fingerprint) is returned instead.
func Build(b aggregator.Bucket, maxLength int) *Message {
	msg := &Message{
		Title:       title(b),
		Severity:    string(b.Severity),
		Category:    string(b.Category),
		Fingerprint: b.Fingerprint,
		Timestamp:   b.LastOccurrence,
	}

	if b.Count > 1 {
		msg.Fields = append(msg.Fields, Field{
			Title: "Occurrences",
			Value: fmt.Sprintf("%d between %s and %s",
				b.Count,
				b.FirstOccurrence.UTC().Format(time.RFC3339),
				b.LastOccurrence.UTC().Format(time.RFC3339)),
		})
	}
	if src := b.RepresentativeErr.Source; src != "" {
		msg.Fields = append(msg.Fields, Field{Title: "Source", Value: src})
	}
	msg.Fields = append(msg.Fields, Field{Title: "Fingerprint", Value: b.Fingerprint})

	overhead := msg.Length()
	budget := maxLength - overhead
	if budget < 0 {
		budget = 0
	}

	stack := b.RepresentativeErr.StackTrace
	msgBudget := budget
	if stack != "" {
		// Reserve room for the stack section, but never starve the message.
		msgBudget = budget - budget/stackReserveFraction
	}

	body := Truncate(b.RepresentativeErr.Message, msgBudget)
	if stack != "" {
		body += "\n\n" + Truncate(stack, budget-len(body)-2)
	}
	msg.Body = body

	if msg.Length() > maxLength {
		return fallback(b, maxLength)
	}
	return msg
}

// fallback is the minimal rendering used when the full form cannot fit.
func fallback(b aggregator.Bucket, maxLength int) *Message {
	msg := &Message{
		Title:       title(b),
		Severity:    string(b.Severity),
		Category:    string(b.Category),
		Fingerprint: b.Fingerprint,
		Timestamp:   b.LastOccurrence,
	}
	budget := maxLength - len(msg.Title) - 2*len(b.Fingerprint)
	msg.Body = Truncate(b.RepresentativeErr.Message, budget)
	msg.Fields = []Field{{Title: "Fingerprint", Value: b.Fingerprint}}
	return msg
}

func title(b aggregator.Bucket) string {
	t := fmt.Sprintf("[%s] %s", b.Severity, b.Category)
	if b.Count > 1 {
		t += fmt.Sprintf(" (x%d)", b.Count)
	}
	return t
}

// SuppressedGroup is one category's worth of suppressed notifications.
type SuppressedGroup struct {
	Category events.Category
	Count    int
}

// BuildSummary renders the periodic suppression summary: per-category
// suppressed counts, how many already-notified errors kept occurring, and
// overall pipeline counters.
func BuildSummary(groups []SuppressedGroup, updated int, stats events.TransportStats) *Message {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Category < groups[j].Category
	})

	var sb strings.Builder
	if len(groups) > 0 {
		sb.WriteString("Suppressed notifications by category:\n")
		for _, g := range groups {
			fmt.Fprintf(&sb, "  %s: %d\n", g.Category, g.Count)
		}
	}
	if updated > 0 {
		fmt.Fprintf(&sb, "%d previously notified errors kept occurring\n", updated)
	}
	fmt.Fprintf(&sb, "\nTotals: received=%d sent=%d aggregated=%d suppressed=%d",
		stats.TotalReceived, stats.TotalSent, stats.TotalAggregated, stats.TotalSuppressed)

	return &Message{
		Title:    "Error notification summary",
		Body:     sb.String(),
		Severity: string(events.SeverityLow),
		Category: "SUMMARY",
	}
}

// Truncate shortens s to at most max characters, appending an ellipsis when
// anything was cut. Non-positive budgets produce an empty string.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
