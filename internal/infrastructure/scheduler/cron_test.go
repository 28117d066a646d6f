package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewCronSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	_, err := NewCronScheduler("not a cron", nil)
	require.Error(t, err)
}

func TestNextHonoursLocation(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	s, err := NewCronScheduler("0 7 * * *", berlin)
	require.NoError(t, err)

	from := time.Date(2025, 11, 8, 5, 0, 0, 0, time.UTC) // 06:00 in Berlin
	next := s.Next(from)
	require.Equal(t, time.Date(2025, 11, 8, 7, 0, 0, 0, berlin).Unix(), next.Unix())

	weekly, err := NewCronScheduler("0 6 * * 1", nil)
	require.NoError(t, err)
	require.Equal(t, time.Monday, weekly.Next(from).Weekday())
}

func TestStartFiresAndStops(t *testing.T) {
	t.Parallel()

	s, err := NewCronScheduler("* * * * * * *", nil)
	require.NoError(t, err)

	fired := make(chan time.Time, 4)
	require.NoError(t, s.Start(context.Background(), func(t time.Time) {
		select {
		case fired <- t:
		default:
		}
	}))
	// A second Start is a no-op.
	require.NoError(t, s.Start(context.Background(), func(time.Time) {}))

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not fire")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestStartStopsOnContext(t *testing.T) {
	t.Parallel()

	s, err := NewCronScheduler("0 0 1 1 *", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, func(time.Time) {}))
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, s.Stop(stopCtx))
}
