package activitymap_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	s2s "github.com/goliatone/go-s2s"
	"github.com/goliatone/go-s2s/activitymap"
)

func TestNormalizeStatusChange(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := s2s.ActivityEvent{
		EventType:  s2s.ActivityEventUserStatusChanged,
		Actor:      s2s.ActorRef{ID: "admin-42", Type: "admin"},
		UserID:     "user-100",
		FromStatus: s2s.UserStatus{s2s.RoleTutor: s2s.StatusActive, s2s.RoleStudent: s2s.StatusActive},
		ToStatus:   s2s.UserStatus{s2s.RoleTutor: s2s.StatusInactive},
		Metadata: map[string]any{
			"ticket": "SEC-204",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "admin-42" {
		t.Fatalf("expected actor_id admin-42, got %q", out.ActorID)
	}
	if out.Verb != string(s2s.ActivityEventUserStatusChanged) {
		t.Fatalf("expected verb %q, got %q", s2s.ActivityEventUserStatusChanged, out.Verb)
	}
	if out.ObjectType != "user" {
		t.Fatalf("expected object_type user, got %q", out.ObjectType)
	}
	if out.ObjectID != "user-100" {
		t.Fatalf("expected object_id user-100, got %q", out.ObjectID)
	}
	if out.Channel != "s2s" {
		t.Fatalf("expected channel s2s, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["ticket"] != "SEC-204" {
		t.Fatalf("expected metadata ticket SEC-204, got %#v", out.Metadata["ticket"])
	}
	if out.Metadata[activitymap.MetadataKeyActorType] != "admin" {
		t.Fatalf("expected metadata actor_type admin, got %#v", out.Metadata[activitymap.MetadataKeyActorType])
	}

	from := fmt.Sprint(out.Metadata[activitymap.MetadataKeyFromStatus])
	if from != "[student=active tutor=active]" {
		t.Fatalf("unexpected from_status %s", from)
	}
	to := fmt.Sprint(out.Metadata[activitymap.MetadataKeyToStatus])
	if to != "[tutor=inactive]" {
		t.Fatalf("unexpected to_status %s", to)
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeInvitationUsesEmail(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(s2s.ActivityEvent{
		EventType: s2s.ActivityEventAdminInvited,
		Actor:     s2s.ActorRef{ID: "admin-1", Type: "admin"},
		Metadata:  map[string]any{"email": "new@example.com"},
	})

	if out.ObjectType != "admin" {
		t.Fatalf("expected object_type admin, got %q", out.ObjectType)
	}
	if out.ObjectID != "new@example.com" {
		t.Fatalf("expected object_id from email, got %q", out.ObjectID)
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	event := s2s.ActivityEvent{
		EventType: s2s.ActivityEventPasswordResetSuccess,
		Actor:     s2s.ActorRef{Type: "user"},
		UserID:    "user-200",
		Metadata: map[string]any{
			"reset_id":                       "reset-1",
			activitymap.MetadataKeyActorType: "existing",
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithObjectType("account"),
		activitymap.WithObjectIDResolver(func(e s2s.ActivityEvent) string {
			if v, ok := e.Metadata["reset_id"].(string); ok {
				return v
			}
			return ""
		}),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "account" {
		t.Fatalf("expected object_type account, got %q", out.ObjectType)
	}
	if out.ObjectID != "reset-1" {
		t.Fatalf("expected object_id reset-1, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyActorType] != "existing" {
		t.Fatalf("expected existing actor_type preserved, got %#v", out.Metadata[activitymap.MetadataKeyActorType])
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  s2s.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses actor id when present",
			event:  s2s.ActivityEvent{Actor: s2s.ActorRef{ID: "actor-1"}, UserID: "user-1"},
			expect: "actor-1",
		},
		{
			name:   "uses user id when actor id missing",
			event:  s2s.ActivityEvent{UserID: "user-2"},
			expect: "user-2",
		},
		{
			name:   "uses default fallback when actor and user missing",
			event:  s2s.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "uses configured fallback when actor and user missing",
			event:  s2s.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("job")},
			expect: "job",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}

type recordingLogger struct {
	msgs []string
	args [][]any
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Warn(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Info(msg string, args ...any) {
	l.msgs = append(l.msgs, msg)
	l.args = append(l.args, args)
}

func TestLogSink(t *testing.T) {
	logger := &recordingLogger{}
	sink := activitymap.LogSink(logger)

	err := sink.Record(context.Background(), s2s.ActivityEvent{
		EventType: s2s.ActivityEventLoginSuccess,
		UserID:    "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	if len(logger.msgs) != 1 || logger.msgs[0] != "activity" {
		t.Fatalf("expected one activity log line, got %v", logger.msgs)
	}
	if logger.args[0][1] != string(s2s.ActivityEventLoginSuccess) {
		t.Fatalf("expected verb first, got %#v", logger.args[0])
	}

	if err := activitymap.LogSink(nil).Record(context.Background(), s2s.ActivityEvent{}); err != nil {
		t.Fatalf("nil logger must be a no-op, got %v", err)
	}
}
