// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	fake := Fake(epoch)
	done := fake.After(10 * time.Second)

	select {
	case <-done:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(9 * time.Second)
	select {
	case <-done:
		t.Fatal("After fired one second early")
	default:
	}

	fake.Advance(time.Second)
	select {
	case firedAt := <-done:
		if !firedAt.Equal(epoch.Add(10 * time.Second)) {
			t.Fatalf("fired at %v, want %v", firedAt, epoch.Add(10*time.Second))
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	fake := Fake(epoch)
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeNowTracksAdvance(t *testing.T) {
	fake := Fake(epoch)
	fake.Advance(90 * time.Minute)
	if got := fake.Now(); !got.Equal(epoch.Add(90 * time.Minute)) {
		t.Fatalf("Now() = %v after Advance", got)
	}
}

func TestFakePendingWaiters(t *testing.T) {
	fake := Fake(epoch)
	fake.After(time.Minute)
	fake.After(time.Hour)
	if got := fake.PendingWaiters(); got != 2 {
		t.Fatalf("PendingWaiters() = %d, want 2", got)
	}
	fake.Advance(time.Minute)
	if got := fake.PendingWaiters(); got != 1 {
		t.Fatalf("PendingWaiters() after Advance = %d, want 1", got)
	}
}
