package config

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MAX_CONTEXT_MESSAGES", "")
	t.Setenv("EXTRACT_EVERY", "not-a-number")
	t.Setenv("LLM_TIMEOUT", "45s")

	cfg := Load()
	assert.Equal(t, 20, cfg.MaxContextMessages)
	assert.Equal(t, 10, cfg.ExtractEvery)
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout)
	assert.Equal(t, "Europe/Istanbul", cfg.DefaultTimezone)
}

func TestSettingsCellUpdateBumpsVersion(t *testing.T) {
	cell := NewSettingsCell(LLMSettings{Provider: "openai", Model: "gpt-4o-mini"})
	before := cell.Load()
	assert.EqualValues(t, 1, before.Version)

	after, err := cell.Update(func(s *LLMSettings) error {
		s.Provider = "anthropic"
		s.Model = "claude-3-5-sonnet-latest"
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, after.Version)
	assert.Equal(t, after, cell.Load())

	// The earlier snapshot is a value and does not observe the swap.
	assert.Equal(t, "openai", before.Provider)
}

func TestSettingsCellFailedUpdateKeepsSnapshot(t *testing.T) {
	cell := NewSettingsCell(LLMSettings{Provider: "openai"})
	_, err := cell.Update(func(s *LLMSettings) error {
		s.Provider = "bogus"
		return errors.New("unknown provider")
	})
	require.Error(t, err)
	assert.Equal(t, "openai", cell.Load().Provider)
	assert.EqualValues(t, 1, cell.Load().Version)
}

func TestSettingsCellConcurrentUpdates(t *testing.T) {
	cell := NewSettingsCell(LLMSettings{Provider: "openai"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cell.Update(func(s *LLMSettings) error { return nil })
			_ = cell.Load()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 51, cell.Load().Version)
}
