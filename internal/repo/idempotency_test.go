package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plankdev/plank-ai-backend/internal/domain"
)

func TestIdempotency_RoundTrip(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "c1", "key-1", "um1", "m1", 200, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.MessageID != "m1" || rec.Status != 200 {
		t.Fatalf("record = %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", "c1", "key-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if got.UserMessageID != "um1" || got.MessageID != "m1" {
		t.Fatalf("got = %+v", got)
	}
}

func TestIdempotency_DuplicateKey(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "c1", "key-1", "", "m1", 200, time.Hour); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "c1", "key-1", "", "m2", 200, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}

	// Same key under another conversation or user is a distinct tuple.
	if _, err := CreateIdempotency(ctx, db, "u1", "c2", "key-1", "", "m3", 200, time.Hour); err != nil {
		t.Fatalf("other conversation: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u2", "c1", "key-1", "", "m4", 200, time.Hour); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestIdempotency_ExpiredRecordInvisible(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "u1", "c1", "key-1", "", "m1", 200, time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := GetIdempotency(ctx, db, "u1", "c1", "key-1", time.Now().UTC().Add(2*time.Minute))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound for expired record, got %v", err)
	}
}

func TestIdempotency_EmptyConversationShortCircuits(t *testing.T) {
	db := newRepoDB(t, &domain.Idempotency{})

	_, err := GetIdempotency(context.Background(), db, "u1", "  ", "key-1", time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
