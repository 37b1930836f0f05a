package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

func TestChainHashDeterministic(t *testing.T) {
	entry := domain.AuditEntry{
		EventTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EventType: "load_started",
		Action:    "start",
		Success:   true,
		Details:   map[string]interface{}{"file": "a.vcf"},
	}

	h1, err := chainHash(entry, "prev")
	require.NoError(t, err)
	h2, err := chainHash(entry, "prev")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestChainHashDependsOnPreviousHash(t *testing.T) {
	entry := domain.AuditEntry{EventTime: time.Now().UTC(), EventType: "x", Action: "x", Success: true}

	h1, err := chainHash(entry, "aaa")
	require.NoError(t, err)
	h2, err := chainHash(entry, "bbb")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestChainHashStableAcrossMapKeyOrder(t *testing.T) {
	e1 := domain.AuditEntry{
		EventTime: time.Now().UTC(), EventType: "x", Action: "x", Success: true,
		Details: map[string]interface{}{"a": 1, "b": 2, "c": 3},
	}
	e2 := domain.AuditEntry{
		EventTime: e1.EventTime, EventType: "x", Action: "x", Success: true,
		Details: map[string]interface{}{"c": 3, "a": 1, "b": 2},
	}

	h1, err := chainHash(e1, "p")
	require.NoError(t, err)
	h2, err := chainHash(e2, "p")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestChainHashSensitiveToTampering(t *testing.T) {
	e1 := domain.AuditEntry{EventTime: time.Now().UTC(), EventType: "x", Action: "start", Success: true}
	e2 := e1
	e2.Action = "tampered"

	h1, err := chainHash(e1, "p")
	require.NoError(t, err)
	h2, err := chainHash(e2, "p")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
