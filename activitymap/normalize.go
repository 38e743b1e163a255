package activitymap

import (
	"context"
	"strconv"
	"strings"
	"time"

	auth "github.com/eloquentlog/go-auth"
)

const (
	// MetadataKeyActorType stores the actor type derived from auth.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromState stores the source activation state of a transition.
	MetadataKeyFromState = "from_state"
	// MetadataKeyToState stores the target activation state of a transition.
	MetadataKeyToState = "to_state"
	// MetadataKeyUserID stores the owning user when the object is an email.
	MetadataKeyUserID = "user_id"
)

const (
	defaultChannel    = "identity"
	defaultObjectType = "user_email"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
}

// Normalize converts an auth.ActivityEvent into a generic normalized shape.
// Events carrying an email id are about that email, the rest about the user.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	objectType, objectID := resolveObject(event)

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Actor.ID), options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event, objectType),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if channel = strings.TrimSpace(channel); channel != "" {
			opts.channel = channel
		}
	}
}

// WithActorFallback sets the actor id used when the event has none.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			opts.actorFallback = actorID
		}
	}
}

// Sink adapts a function receiving normalized records to auth.ActivitySink
func Sink(fn func(ctx context.Context, record Normalized) error, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		if fn == nil {
			return nil
		}
		return fn(ctx, Normalize(event, opts...))
	})
}

// LoggerSink writes each normalized record as an info line
func LoggerSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	return Sink(func(ctx context.Context, record Normalized) error {
		logger.Info("activity %s %s:%s by %s %v", record.Verb, record.ObjectType, record.ObjectID, record.ActorID, record.Metadata)
		return nil
	}, opts...)
}

func resolveObject(event auth.ActivityEvent) (string, string) {
	if event.EmailID != 0 {
		return defaultObjectType, strconv.FormatInt(event.EmailID, 10)
	}
	if event.UserID != 0 {
		return "user", strconv.FormatInt(event.UserID, 10)
	}
	return "", ""
}

func normalizeMetadata(event auth.ActivityEvent, objectType string) map[string]any {
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

	if objectType == defaultObjectType && event.UserID != 0 {
		set(MetadataKeyUserID, event.UserID)
	}

	if event.FromState != "" {
		set(MetadataKeyFromState, string(event.FromState))
	}

	if event.ToState != "" {
		set(MetadataKeyToState, string(event.ToState))
	}

	return metadata
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
