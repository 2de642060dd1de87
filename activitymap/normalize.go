package activitymap

import (
	"context"
	"sort"
	"strings"
	"time"

	s2s "github.com/goliatone/go-s2s"
)

const (
	// MetadataKeyActorType stores s2s.ActorRef.Type
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStatus stores the per role status before a change
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the per role status after a change
	MetadataKeyToStatus = "to_status"
)

const (
	defaultChannel = "s2s"
	defaultActorID = "system"
)

// Normalized is a transport agnostic activity record for audit feeds and logs.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(s2s.ActivityEvent) string
}

// Normalize converts an s2s.ActivityEvent into a Normalized record. The
// object type defaults to the first segment of the event type, so
// "admin.invited" is an "admin" object and "auth.login.success" an "auth" one.
func Normalize(event s2s.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(event.UserID),
		strings.TrimSpace(options.actorFallback),
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: firstNonEmpty(options.objectType, objectTypeOf(event.EventType)),
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType pins the object type instead of deriving it from the verb.
func WithObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object id extraction.
func WithObjectIDResolver(resolver func(s2s.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the event has neither actor nor user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// LogSink writes every event as a normalized record through logger.
func LogSink(logger s2s.Logger, opts ...Option) s2s.ActivitySink {
	return s2s.ActivitySinkFunc(func(_ context.Context, event s2s.ActivityEvent) error {
		if logger == nil {
			return nil
		}
		rec := Normalize(event, opts...)
		args := []any{
			"verb", rec.Verb,
			"actor_id", rec.ActorID,
			"object_type", rec.ObjectType,
			"object_id", rec.ObjectID,
			"channel", rec.Channel,
			"occurred_at", rec.OccurredAt,
		}
		if len(rec.Metadata) > 0 {
			args = append(args, "metadata", rec.Metadata)
		}
		logger.Info("activity", args...)
		return nil
	})
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
	}
}

func objectTypeOf(eventType s2s.ActivityEventType) string {
	verb := string(eventType)
	if i := strings.Index(verb, "."); i > 0 {
		return verb[:i]
	}
	return verb
}

func resolveObjectID(event s2s.ActivityEvent, resolver func(s2s.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	if id := strings.TrimSpace(event.UserID); id != "" {
		return id
	}
	if email, ok := event.Metadata["email"].(string); ok {
		return email
	}
	return ""
}

func normalizeMetadata(event s2s.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			set(MetadataKeyActorType, actorType)
		}
	}

	if len(event.FromStatus) > 0 {
		set(MetadataKeyFromStatus, statusStrings(event.FromStatus))
	}

	if len(event.ToStatus) > 0 {
		set(MetadataKeyToStatus, statusStrings(event.ToStatus))
	}

	return metadata
}

// statusStrings flattens a status map into "role=status" pairs in role order
func statusStrings(status s2s.UserStatus) []string {
	out := make([]string, 0, len(status))
	for role, value := range status {
		out = append(out, string(role)+"="+string(value))
	}
	sort.Strings(out)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
