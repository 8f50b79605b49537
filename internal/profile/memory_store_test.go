package profile

import (
	"context"
	"testing"
)

func TestCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetByUserID(ctx, "u1"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	p := &UserProfile{UserID: "u1", Email: "a@example.com", TrustScore: 50}
	if err := s.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, p); err != ErrExists {
		t.Errorf("duplicate create err = %v, want ErrExists", err)
	}

	got, err := s.GetByUserID(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.RiskTier != "BRONZE" {
		t.Errorf("tier defaults to BRONZE, got %q", got.RiskTier)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, &UserProfile{UserID: "u1", KnownDevices: []string{"d1"}})

	got, _ := s.GetByUserID(ctx, "u1")
	got.KnownDevices[0] = "mutated"
	got.TrustScore = 99

	again, _ := s.GetByUserID(ctx, "u1")
	if again.KnownDevices[0] != "d1" || again.TrustScore == 99 {
		t.Error("mutating a returned profile must not touch the store")
	}
}

func TestAddKnownDevice(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, &UserProfile{UserID: "u1"})

	if err := s.AddKnownDevice(ctx, "u1", "d1"); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := s.AddKnownDevice(ctx, "u1", "d1"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetByUserID(ctx, "u1")
	if len(got.KnownDevices) != 1 {
		t.Errorf("devices = %v, want one entry", got.KnownDevices)
	}
	if !got.KnowsDevice("d1") {
		t.Error("device should be known")
	}

	if err := s.AddKnownDevice(ctx, "missing", "d1"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAdjustTrustScoreClamped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Create(ctx, &UserProfile{UserID: "u1", TrustScore: 90})

	if err := s.AdjustTrustScore(ctx, "u1", 50); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetByUserID(ctx, "u1")
	if got.TrustScore != 100 {
		t.Errorf("trust = %d, want clamp at 100", got.TrustScore)
	}

	if err := s.AdjustTrustScore(ctx, "u1", -150); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetByUserID(ctx, "u1")
	if got.TrustScore != 0 {
		t.Errorf("trust = %d, want clamp at 0", got.TrustScore)
	}
}
