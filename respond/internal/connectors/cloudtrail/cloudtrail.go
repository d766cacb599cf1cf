// Package cloudtrail pulls recent AWS CloudTrail management events into an
// ingestion batch.
package cloudtrail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"

	"github.com/secureops/workbench/common/logging"
	"github.com/secureops/workbench/respond/internal/ingest"
	"github.com/secureops/workbench/respond/internal/payload"
)

// Source tags every CloudTrail event.
const Source = "aws-cloudtrail"

// RoleSessionName names sessions assumed for CloudTrail lookups.
const RoleSessionName = "secureops-workbench-cloudtrail-sync"

// Lookup bounds.
const (
	PageSize       = 50
	DefaultMinutes = 15
	MaxMinutes     = 1440
)

// Window is the time range of one pull.
type Window struct {
	Start time.Time
	End   time.Time
}

// Connector pulls events through the LookupEvents API.
type Connector struct {
	client cloudtrail.LookupEventsAPIClient
	region string
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Connector.
type Option func(*Connector)

// WithClock overrides the end of the lookup window.
func WithClock(now func() time.Time) Option {
	return func(c *Connector) { c.now = now }
}

// New creates a connector for region using client.
func New(client cloudtrail.LookupEventsAPIClient, region string, logger *logging.Logger, opts ...Option) *Connector {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Connector{
		client: client,
		region: region,
		logger: logger.With(logging.Component("cloudtrail")),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a connector from resolved AWS configuration.
func NewFromConfig(cfg aws.Config, logger *logging.Logger, opts ...Option) *Connector {
	return New(cloudtrail.NewFromConfig(cfg), cfg.Region, logger, opts...)
}

// Region returns the region the connector queries.
func (c *Connector) Region() string { return c.region }

// Pull looks up the last minutes of activity and returns it as a batch. The
// batch bytes are the JSONL serialization of the lookup records, without the
// per-event metadata added to stored events.
func (c *Connector) Pull(ctx context.Context, minutes int) (*ingest.Batch, Window, error) {
	if minutes < 1 || minutes > MaxMinutes {
		return nil, Window{}, fmt.Errorf("minutes must be between 1 and %d", MaxMinutes)
	}
	end := c.now().UTC().Truncate(time.Microsecond)
	win := Window{Start: end.Add(-time.Duration(minutes) * time.Minute), End: end}

	paginator := cloudtrail.NewLookupEventsPaginator(c.client, &cloudtrail.LookupEventsInput{
		StartTime:  aws.Time(win.Start),
		EndTime:    aws.Time(win.End),
		MaxResults: aws.Int32(PageSize),
	})

	var raws []payload.Value
	var records []ingest.Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, win, fmt.Errorf("cloudtrail lookup_events failed: %w", err)
		}
		for _, ev := range page.Events {
			raw := recordOf(ev)
			raws = append(raws, raw)
			records = append(records, c.record(raw))
		}
	}

	data, err := ingest.EncodeJSONL(raws)
	if err != nil {
		return nil, win, fmt.Errorf("failed to encode cloudtrail records: %w", err)
	}
	c.logger.InfoContext(ctx, "cloudtrail lookup complete",
		"region", c.region, logging.Count(len(records)))
	return ingest.NewBatch(Filename(c.region, win), data, ingest.Tags{Source: Source}, records), win, nil
}

// Filename names the stored JSONL for a pull. Colons are removed so the
// name is portable.
func Filename(region string, win Window) string {
	name := fmt.Sprintf("cloudtrail_%s_%s_%s.jsonl", region, isoformat(win.Start), isoformat(win.End))
	return strings.ReplaceAll(name, ":", "")
}

func isoformat(t time.Time) string {
	if t.Nanosecond()/1000 != 0 {
		return t.Format("2006-01-02T15:04:05.000000-07:00")
	}
	return t.Format("2006-01-02T15:04:05-07:00")
}

// recordOf builds {"lookup": ..., "cloudtrail": ...} for one event.
func recordOf(ev types.Event) payload.Value {
	return payload.Mapping(
		payload.Field("lookup", lookupSummary(ev)),
		payload.Field("cloudtrail", parseDetail(aws.ToString(ev.CloudTrailEvent))),
	)
}

func parseDetail(s string) payload.Value {
	if strings.TrimSpace(s) == "" {
		return payload.Mapping()
	}
	v, err := payload.Decode([]byte(s))
	if err != nil {
		return payload.Mapping(payload.Field("raw_cloudtrail_event", payload.String(s)))
	}
	return v
}

func lookupSummary(ev types.Event) payload.Value {
	var fields []payload.Member
	str := func(key string, p *string) {
		if p != nil {
			fields = append(fields, payload.Field(key, payload.String(*p)))
		}
	}
	str("EventId", ev.EventId)
	str("EventName", ev.EventName)
	str("ReadOnly", ev.ReadOnly)
	str("AccessKeyId", ev.AccessKeyId)
	if ev.EventTime != nil {
		fields = append(fields, payload.Field("EventTime", payload.String(isoformat(ev.EventTime.UTC()))))
	}
	str("EventSource", ev.EventSource)
	str("Username", ev.Username)
	if ev.Resources != nil {
		items := make([]payload.Value, 0, len(ev.Resources))
		for _, r := range ev.Resources {
			var rf []payload.Member
			if r.ResourceType != nil {
				rf = append(rf, payload.Field("ResourceType", payload.String(*r.ResourceType)))
			}
			if r.ResourceName != nil {
				rf = append(rf, payload.Field("ResourceName", payload.String(*r.ResourceName)))
			}
			items = append(items, payload.Mapping(rf...))
		}
		fields = append(fields, payload.Field("Resources", payload.Sequence(items...)))
	}
	return payload.Mapping(fields...)
}

// record decorates a lookup record with _meta and extracts the user name.
func (c *Connector) record(raw payload.Value) ingest.Record {
	detail, _ := raw.Get("cloudtrail")

	var user string
	eventSource := payload.Null()
	if detail.IsMapping() {
		if v, ok := payload.Resolve(detail, "userIdentity.userName"); ok {
			user, _ = v.AsString()
		}
		if v, ok := detail.Get("eventSource"); ok {
			eventSource = v
		}
	}

	meta := payload.Mapping(
		payload.Field("region", payload.String(c.region)),
		payload.Field("eventSource", eventSource),
	)
	return ingest.Record{User: user, Raw: raw.With("_meta", meta)}
}
