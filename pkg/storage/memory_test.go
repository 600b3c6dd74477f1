package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/HatiCode/tsdash/pkg/timeseries"
)

func testSeries(t *testing.T) *timeseries.Series {
	t.Helper()
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := timeseries.DateRange(start, start.AddDate(0, 0, 2), timeseries.Daily)
	s, err := timeseries.New("sales", ts, []float64{1, 2.5, 3}, timeseries.Daily)
	if err != nil {
		t.Fatalf("timeseries.New() error = %v", err)
	}
	return s
}

func testSession(t *testing.T, id string) Session {
	t.Helper()
	return Session{
		ID:        id,
		Label:     "sales.csv",
		Source:    SourceUpload,
		Series:    testSeries(t),
		CreatedAt: time.Now(),
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	tests := []struct {
		name    string
		session func(t *testing.T) Session
		wantErr bool
	}{
		{
			name:    "valid session",
			session: func(t *testing.T) Session { return testSession(t, "0b6f3c1e-8d4a-4a57-9d0c-2f1e5a7b9c10") },
		},
		{
			name:    "empty id",
			session: func(t *testing.T) Session { return testSession(t, "") },
			wantErr: true,
		},
		{
			name:    "id with separator",
			session: func(t *testing.T) Session { return testSession(t, "a:b") },
			wantErr: true,
		},
		{
			name: "missing series",
			session: func(t *testing.T) Session {
				s := testSession(t, "abc")
				s.Series = nil
				return s
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			sess := tt.session(t)

			err := store.Put(context.Background(), sess)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Put() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			got, found, err := store.Get(context.Background(), sess.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if !found {
				t.Fatal("Get() found = false, want true")
			}
			if got.Label != sess.Label || got.Source != sess.Source {
				t.Errorf("Get() = %+v, want %+v", got, sess)
			}
			if got.Series.Len() != 3 {
				t.Errorf("Series.Len() = %d, want 3", got.Series.Len())
			}
		})
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()

	sess, found, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Errorf("Get() error = %v", err)
	}
	if found {
		t.Error("Get() found = true for a missing id")
	}
	if sess.ID != "" {
		t.Error("Get() returned a non-zero session for a missing id")
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Put(ctx, testSession(t, "abc")); err != context.Canceled {
		t.Errorf("Put() error = %v, want context.Canceled", err)
	}
	if _, _, err := store.Get(ctx, "abc"); err != context.Canceled {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}

func TestMemoryStore_Replace(t *testing.T) {
	store := NewMemoryStore()

	first := testSession(t, "abc")
	second := testSession(t, "abc")
	second.Label = "an ARMA(1, 1) sample"
	second.Source = SourceSample

	for _, s := range []Session{first, second} {
		if err := store.Put(context.Background(), s); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	got, _, _ := store.Get(context.Background(), "abc")
	if got.Source != SourceSample {
		t.Errorf("Get() returned the replaced session")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	series := testSeries(t)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := range 50 {
				sess := Session{ID: fmt.Sprintf("s-%d-%d", i, j), Series: series, CreatedAt: time.Now()}
				if err := store.Put(context.Background(), sess); err != nil {
					t.Errorf("Put() error = %v", err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := range 50 {
				if _, _, err := store.Get(context.Background(), fmt.Sprintf("s-%d-%d", i, j)); err != nil {
					t.Errorf("Get() error = %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if store.Len() != 1000 {
		t.Errorf("Len() = %d, want 1000", store.Len())
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Put(context.Background(), testSession(t, "abc")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if !store.Delete("abc") {
		t.Error("Delete() = false for an existing session")
	}
	if _, found, _ := store.Get(context.Background(), "abc"); found {
		t.Error("Get() found a deleted session")
	}
	if store.Delete("abc") {
		t.Error("Delete() = true for a missing session")
	}
}

func TestMemoryStoreWithTTL_Expiration(t *testing.T) {
	ttl := 100 * time.Millisecond
	interval := 50 * time.Millisecond
	store := NewMemoryStoreWithTTL(ttl, interval)
	defer store.Stop()

	if err := store.Put(context.Background(), testSession(t, "ttl")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, found, _ := store.Get(context.Background(), "ttl"); !found {
		t.Fatal("session missing right after Put")
	}

	time.Sleep(ttl + interval + 50*time.Millisecond)

	if _, found, _ := store.Get(context.Background(), "ttl"); found {
		t.Error("session still present after TTL")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after cleanup, want 0", store.Len())
	}
}

func TestMemoryStoreWithTTL_ExpiredBeforeCleanup(t *testing.T) {
	store := NewMemoryStoreWithTTL(time.Minute, time.Hour)
	defer store.Stop()

	now := time.Now()
	store.now = func() time.Time { return now.Add(2 * time.Minute) }

	sess := testSession(t, "old")
	sess.CreatedAt = now
	if err := store.Put(context.Background(), sess); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, found, _ := store.Get(context.Background(), "old"); found {
		t.Error("Get() returned an expired session")
	}
}

func TestMemoryStore_StopIdempotent(t *testing.T) {
	NewMemoryStore().Stop()

	store := NewMemoryStoreWithTTL(time.Minute, time.Minute)
	store.Stop()
	store.Stop()
}

func TestNewMemoryStoreWithTTL_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewMemoryStoreWithTTL(0) did not panic")
		}
	}()
	NewMemoryStoreWithTTL(0, time.Minute)
}
