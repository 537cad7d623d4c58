// Package security turns the gateway's audit events into threshold alerts.
package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Rule raises one alert when the Threshold-th matching event from one client
// IP lands in a Window. An empty Event matches every event.
type Rule struct {
	Event     string
	Outcome   string
	Threshold int64
	Window    time.Duration
}

// DefaultRules covers credential stuffing, token probing and id probing.
// The first matching rule wins.
var DefaultRules = []Rule{
	{Outcome: "rate_limited", Threshold: 20, Window: time.Minute},
	{Outcome: "forbidden", Threshold: 15, Window: 5 * time.Minute},
	{Event: "gateway.login", Outcome: "fail", Threshold: 10, Window: 5 * time.Minute},
	{Event: "gateway.register", Outcome: "fail", Threshold: 10, Window: 5 * time.Minute},
	{Event: "gateway.authorize", Outcome: "fail", Threshold: 25, Window: 5 * time.Minute},
}

// AlertResult is the counter state after one observation.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// AuditAlerter keeps per-IP event counters in Redis, so every gateway
// replica contributes to the same totals.
type AuditAlerter struct {
	client redis.UniversalClient
	prefix string
	rules  []Rule
	now    func() time.Time
}

// NewAuditAlerter creates an alerter using rules, or DefaultRules when none
// are given. A nil client yields a nil alerter, whose Observe is a no-op.
func NewAuditAlerter(client redis.UniversalClient, prefix string, rules ...Rule) *AuditAlerter {
	if client == nil {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "bookshelf:gateway:alerts"
	}
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &AuditAlerter{client: client, prefix: prefix, rules: rules, now: time.Now}
}

// Observe counts one event. Triggered is set once per window, on the event
// that reaches the threshold. Events without a matching rule are not counted.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	if a == nil {
		return AlertResult{}, nil
	}
	rule, ok := a.match(event, outcome)
	if !ok || rule.Window <= 0 {
		return AlertResult{}, nil
	}
	windowMs := rule.Window.Milliseconds()
	slot := a.now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, keySegment(event), keySegment(outcome), keySegment(ip), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return AlertResult{}, fmt.Errorf("alert counter: %w", err)
	}
	return AlertResult{
		Triggered: count == rule.Threshold,
		Count:     count,
		Threshold: rule.Threshold,
		Window:    rule.Window,
	}, nil
}

func (a *AuditAlerter) match(event, outcome string) (Rule, bool) {
	event, outcome = strings.TrimSpace(event), strings.TrimSpace(outcome)
	for _, r := range a.rules {
		if r.Outcome == outcome && (r.Event == "" || r.Event == event) {
			return r, true
		}
	}
	return Rule{}, false
}

var keySegmentReplacer = strings.NewReplacer(":", "_", "|", "_", " ", "_")

func keySegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return keySegmentReplacer.Replace(in)
}
