package store

import "testing"

func TestSettingsGetSet(t *testing.T) {
	ss := NewSettingsStore(openTestDB(t))

	if _, ok, err := ss.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key = %v, %v", ok, err)
	}
	if err := ss.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := ss.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := ss.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Errorf("get = %q, %v, %v", v, ok, err)
	}
}

func TestSettingsGetOrCreate(t *testing.T) {
	ss := NewSettingsStore(openTestDB(t))
	calls := 0
	gen := func() (string, error) {
		calls++
		return "generated", nil
	}

	for i := 0; i < 2; i++ {
		v, err := ss.GetOrCreate(ctx, SettingJournalSalt, gen)
		if err != nil {
			t.Fatalf("get or create: %v", err)
		}
		if v != "generated" {
			t.Errorf("value = %q", v)
		}
	}
	if calls != 1 {
		t.Errorf("generate called %d times, want 1", calls)
	}
}
