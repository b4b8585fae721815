package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{
			name:   "all up",
			checks: map[string]Check{"modules": MinCount("modules", 1, func() int { return 2 })},
			want:   StatusUp,
		},
		{
			name: "optional redis down",
			checks: map[string]Check{
				"modules": MinCount("modules", 1, func() int { return 2 }),
				"redis":   Ping(func(context.Context) error { return errors.New("refused") }, true),
			},
			want: StatusDegraded,
		},
		{
			name: "no modules",
			checks: map[string]Check{
				"modules": MinCount("modules", 1, func() int { return 0 }),
				"redis":   Ping(func(context.Context) error { return errors.New("refused") }, true),
			},
			want: StatusDown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("modules", MinCount("modules", 1, func() int { return 0 }))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDown, report.Components["modules"].Status)

	rec = httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyWhenDegraded(t *testing.T) {
	c := NewChecker()
	c.Register("modules", MinCount("modules", 1, func() int { return 3 }))
	c.Register("redis", Ping(func(context.Context) error { return errors.New("refused") }, true))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["redis"].Message)
	assert.NotEmpty(t, report.Uptime)
}

func TestRunRecoversPanics(t *testing.T) {
	c := NewChecker()
	c.Register("broken", func(context.Context) ComponentHealth { panic("boom") })

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["broken"].Message, "boom")
	assert.NotEmpty(t, report.Components["broken"].Latency)
}

func TestRunAppliesCheckTimeout(t *testing.T) {
	c := NewChecker()
	c.SetCheckTimeout(20 * time.Millisecond)
	c.Register("slow", Ping(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, false))

	start := time.Now()
	report := c.Run(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Components["slow"].Message)
}

func TestRegisterReplaces(t *testing.T) {
	c := NewChecker()
	c.Register("modules", MinCount("modules", 1, func() int { return 0 }))
	c.Register("modules", MinCount("modules", 1, func() int { return 1 }))

	report := c.Run(context.Background())
	assert.Len(t, report.Components, 1)
	assert.Equal(t, StatusUp, report.Status)
	assert.Equal(t, "1 modules loaded", report.Components["modules"].Message)
}
