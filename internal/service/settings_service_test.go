package service

import (
	"errors"
	"testing"

	"crossarb/internal/models"
)

func TestSettingsService_GetSettings(t *testing.T) {
	repo := NewMockSettingsRepository()
	svc := NewSettingsService(repo)

	settings, err := svc.GetSettings()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.AutoStart {
		t.Error("expected auto_start false by default")
	}
	if settings.MaxConcurrentStrategies != nil {
		t.Error("expected max_concurrent_strategies null by default")
	}
	if !settings.NotificationPrefs.Open || !settings.NotificationPrefs.Chase {
		t.Error("expected all notification types enabled by default")
	}
}

func TestSettingsService_UpdateSettings(t *testing.T) {
	t.Run("updates only provided fields", func(t *testing.T) {
		repo := NewMockSettingsRepository()
		svc := NewSettingsService(repo)

		autoStart := true
		updated, err := svc.UpdateSettings(&UpdateSettingsRequest{AutoStart: &autoStart})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !updated.AutoStart {
			t.Error("expected auto_start true after update")
		}
		if updated.MaxConcurrentStrategies != nil {
			t.Error("expected max_concurrent_strategies untouched")
		}
	})

	t.Run("sets max concurrent strategies", func(t *testing.T) {
		repo := NewMockSettingsRepository()
		svc := NewSettingsService(repo)

		limit := 5
		updated, err := svc.UpdateSettings(&UpdateSettingsRequest{MaxConcurrentStrategies: &limit})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if updated.MaxConcurrentStrategies == nil || *updated.MaxConcurrentStrategies != 5 {
			t.Errorf("expected limit 5, got %v", updated.MaxConcurrentStrategies)
		}
	})

	t.Run("rejects limit below one", func(t *testing.T) {
		repo := NewMockSettingsRepository()
		svc := NewSettingsService(repo)

		for _, limit := range []int{0, -1, -100} {
			l := limit
			_, err := svc.UpdateSettings(&UpdateSettingsRequest{MaxConcurrentStrategies: &l})
			if !errors.Is(err, ErrInvalidMaxConcurrentStrategies) {
				t.Errorf("limit %d: expected ErrInvalidMaxConcurrentStrategies, got %v", limit, err)
			}
		}
	})

	t.Run("clear flag resets limit to null", func(t *testing.T) {
		repo := NewMockSettingsRepository()
		svc := NewSettingsService(repo)

		limit := 3
		if _, err := svc.UpdateSettings(&UpdateSettingsRequest{MaxConcurrentStrategies: &limit}); err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		updated, err := svc.UpdateSettings(&UpdateSettingsRequest{ClearMaxConcurrentStrategies: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.MaxConcurrentStrategies != nil {
			t.Errorf("expected null limit after clear, got %v", *updated.MaxConcurrentStrategies)
		}
	})

	t.Run("clear flag wins over provided limit", func(t *testing.T) {
		repo := NewMockSettingsRepository()
		svc := NewSettingsService(repo)

		limit := 3
		updated, err := svc.UpdateSettings(&UpdateSettingsRequest{
			MaxConcurrentStrategies:      &limit,
			ClearMaxConcurrentStrategies: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.MaxConcurrentStrategies != nil {
			t.Error("expected clear flag to take precedence")
		}
	})

	t.Run("updates notification prefs", func(t *testing.T) {
		repo := NewMockSettingsRepository()
		svc := NewSettingsService(repo)

		prefs := allNotificationsEnabled()
		prefs.Chase = false
		prefs.Timeout = false

		updated, err := svc.UpdateSettings(&UpdateSettingsRequest{NotificationPrefs: &prefs})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if updated.NotificationPrefs.Chase {
			t.Error("expected chase notifications disabled")
		}
		if updated.NotificationPrefs.Timeout {
			t.Error("expected timeout notifications disabled")
		}
		if !updated.NotificationPrefs.Open {
			t.Error("expected open notifications still enabled")
		}
	})

	t.Run("repository error propagated", func(t *testing.T) {
		repo := NewMockSettingsRepository()
		repo.updateErr = errors.New("db down")
		svc := NewSettingsService(repo)

		autoStart := true
		if _, err := svc.UpdateSettings(&UpdateSettingsRequest{AutoStart: &autoStart}); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

func TestSettingsService_UpdateMaxConcurrentStrategies(t *testing.T) {
	repo := NewMockSettingsRepository()
	svc := NewSettingsService(repo)

	limit := 10
	if err := svc.UpdateMaxConcurrentStrategies(&limit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.GetMaxConcurrentStrategies()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || *got != 10 {
		t.Errorf("expected limit 10, got %v", got)
	}

	// nil снимает ограничение
	if err := svc.UpdateMaxConcurrentStrategies(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = svc.GetMaxConcurrentStrategies()
	if got != nil {
		t.Errorf("expected null limit, got %v", *got)
	}

	// Значения меньше 1 отклоняются
	zero := 0
	if err := svc.UpdateMaxConcurrentStrategies(&zero); !errors.Is(err, ErrInvalidMaxConcurrentStrategies) {
		t.Errorf("expected ErrInvalidMaxConcurrentStrategies, got %v", err)
	}
}

func TestSettingsService_UpdateAutoStart(t *testing.T) {
	repo := NewMockSettingsRepository()
	svc := NewSettingsService(repo)

	if err := svc.UpdateAutoStart(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settings, _ := svc.GetSettings()
	if !settings.AutoStart {
		t.Error("expected auto_start true")
	}
}

func TestSettingsService_UpdateNotificationPrefs(t *testing.T) {
	repo := NewMockSettingsRepository()
	svc := NewSettingsService(repo)

	prefs := allNotificationsEnabled()
	prefs.Unilateral = false

	if err := svc.UpdateNotificationPrefs(prefs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.GetNotificationPrefs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Unilateral {
		t.Error("expected unilateral notifications disabled")
	}
	if !got.RiskViolation {
		t.Error("expected risk violation notifications still enabled")
	}
}

func TestSettingsService_ResetToDefaults(t *testing.T) {
	repo := NewMockSettingsRepository()
	svc := NewSettingsService(repo)

	limit := 2
	prefs := models.NotificationPreferences{} // все выключены
	if _, err := svc.UpdateSettings(&UpdateSettingsRequest{
		MaxConcurrentStrategies: &limit,
		NotificationPrefs:       &prefs,
	}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if err := svc.ResetToDefaults(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settings, _ := svc.GetSettings()
	if settings.MaxConcurrentStrategies != nil {
		t.Error("expected null limit after reset")
	}
	if !settings.NotificationPrefs.Open || !settings.NotificationPrefs.APIError {
		t.Error("expected all notification types enabled after reset")
	}
	if settings.AutoStart {
		t.Error("expected auto_start false after reset")
	}
}
