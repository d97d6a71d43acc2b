package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodgate-dl/floodgate/internal/testutil"
)

func newTestManager(t *testing.T, settings Settings) *Manager {
	t.Helper()
	m, err := NewManager(settings, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)
	return m
}

func waitForState(t *testing.T, m *Manager, id JobID, kind LifecycleKind, timeout time.Duration) JobGlance {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		g, err := m.Detail(id)
		require.NoError(t, err)
		if g.State.Kind == kind {
			return g
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %s", id, kind)
	return JobGlance{}
}

func TestSubmitDownloadsToCompletion(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(256*1024))
	defer srv.Close()

	m := newTestManager(t, DefaultSettings())
	dest := filepath.Join(t.TempDir(), "out.bin")
	id := m.Submit(srv.URL(), dest)

	g := waitForState(t, m, id, Completed, 5*time.Second)
	assert.Equal(t, int64(256*1024), g.Downloaded)
}

func TestSubmitRejectsUnreachableHostEventually(t *testing.T) {
	settings := DefaultSettings()
	settings.DownloadRetries = 1
	m := newTestManager(t, settings)

	dest := filepath.Join(t.TempDir(), "out.bin")
	id := m.Submit("http://127.0.0.1:1/nope", dest)

	waitForState(t, m, id, Error, 5*time.Second)
}

func TestPauseParksJobInPlace(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(4*1024*1024), testutil.WithByteLatency(2*time.Microsecond))
	defer srv.Close()

	m := newTestManager(t, DefaultSettings())
	dest := filepath.Join(t.TempDir(), "out.bin")
	id := m.Submit(srv.URL(), dest)

	waitForState(t, m, id, Running, 2*time.Second)

	require.NoError(t, m.Pause(id))
	g := waitForState(t, m, id, Paused, 2*time.Second)
	paused := g.Downloaded

	time.Sleep(50 * time.Millisecond)
	g2, err := m.Detail(id)
	require.NoError(t, err)
	assert.Equal(t, paused, g2.Downloaded, "no bytes should move while paused")

	require.NoError(t, m.Resume(id))
	waitForState(t, m, id, Completed, 5*time.Second)
}

func TestResumeIsNoopWhenNotPaused(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(1024))
	defer srv.Close()

	m := newTestManager(t, DefaultSettings())
	dest := filepath.Join(t.TempDir(), "out.bin")
	id := m.Submit(srv.URL(), dest)

	waitForState(t, m, id, Completed, 5*time.Second)
	assert.NoError(t, m.Resume(id))
}

func TestCancelStopsJobPermanently(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(4*1024*1024), testutil.WithByteLatency(2*time.Microsecond))
	defer srv.Close()

	m := newTestManager(t, DefaultSettings())
	dest := filepath.Join(t.TempDir(), "out.bin")
	id := m.Submit(srv.URL(), dest)

	waitForState(t, m, id, Running, 2*time.Second)
	require.NoError(t, m.Cancel(id))
	waitForState(t, m, id, Cancelled, 2*time.Second)
}

func TestCommandsOnUnknownJobReturnNotFound(t *testing.T) {
	m := newTestManager(t, DefaultSettings())
	bogus := NewJobID()

	var notFound *NotFoundError
	_, err := m.Detail(bogus)
	assert.ErrorAs(t, err, &notFound)
	assert.ErrorAs(t, m.Pause(bogus), &notFound)
	assert.ErrorAs(t, m.Resume(bogus), &notFound)
	assert.ErrorAs(t, m.Cancel(bogus), &notFound)
}

func TestConcurrencyLimitQueuesExcessJobs(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(2*1024*1024), testutil.WithByteLatency(2*time.Microsecond))
	defer srv.Close()

	settings := DefaultSettings()
	settings.ConcurrencyLimit = 1
	m := newTestManager(t, settings)

	first := m.Submit(srv.URL(), filepath.Join(t.TempDir(), "a.bin"))
	second := m.Submit(srv.URL(), filepath.Join(t.TempDir(), "b.bin"))

	waitForState(t, m, first, Running, 2*time.Second)
	g, err := m.Detail(second)
	require.NoError(t, err)
	assert.Equal(t, Queued, g.State.Kind)

	waitForState(t, m, first, Completed, 5*time.Second)
	waitForState(t, m, second, Completed, 5*time.Second)
}

func TestUpdateSettingsRaisesConcurrencyAndAdmitsQueuedJobs(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(1024*1024), testutil.WithByteLatency(time.Microsecond))
	defer srv.Close()

	settings := DefaultSettings()
	settings.ConcurrencyLimit = 1
	m := newTestManager(t, settings)

	first := m.Submit(srv.URL(), filepath.Join(t.TempDir(), "a.bin"))
	second := m.Submit(srv.URL(), filepath.Join(t.TempDir(), "b.bin"))
	waitForState(t, m, first, Running, 2*time.Second)

	limit := 2
	m.UpdateSettings(SettingsPatch{ConcurrencyLimit: &limit})

	waitForState(t, m, second, Running, 2*time.Second)
	waitForState(t, m, first, Completed, 5*time.Second)
	waitForState(t, m, second, Completed, 5*time.Second)
}

func TestLoweringConcurrencyDemotesExcessRunningJobs(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(4*1024*1024), testutil.WithByteLatency(5*time.Microsecond))
	defer srv.Close()

	settings := DefaultSettings()
	settings.ConcurrencyLimit = 3
	m := newTestManager(t, settings)

	a := m.Submit(srv.URL(), filepath.Join(t.TempDir(), "a.bin"))
	b := m.Submit(srv.URL(), filepath.Join(t.TempDir(), "b.bin"))
	c := m.Submit(srv.URL(), filepath.Join(t.TempDir(), "c.bin"))

	waitForState(t, m, a, Running, 2*time.Second)
	waitForState(t, m, b, Running, 2*time.Second)
	waitForState(t, m, c, Running, 2*time.Second)

	limit := 1
	m.UpdateSettings(SettingsPatch{ConcurrencyLimit: &limit})

	// Demotion picks the earliest-admitted jobs first, regardless of how
	// long they've run: a and b give up their slot, c (admitted last)
	// keeps running. Demotion parks the fetchers in place (Paused) before
	// immediately requeuing them (Queued); the transition through Paused
	// happens synchronously inside admit and isn't guaranteed observable
	// from the outside, so assert the two settled end states instead.
	aGlance := waitForState(t, m, a, Queued, 2*time.Second)
	bGlance := waitForState(t, m, b, Queued, 2*time.Second)
	waitForState(t, m, c, Running, time.Second)

	time.Sleep(25 * time.Millisecond)
	aAfter, err := m.Detail(a)
	require.NoError(t, err)
	bAfter, err := m.Detail(b)
	require.NoError(t, err)
	assert.Equal(t, aGlance.Downloaded, aAfter.Downloaded, "demoted job a must not keep downloading while Queued")
	assert.Equal(t, bGlance.Downloaded, bAfter.Downloaded, "demoted job b must not keep downloading while Queued")

	waitForState(t, m, c, Completed, 10*time.Second)

	limit = 3
	m.UpdateSettings(SettingsPatch{ConcurrencyLimit: &limit})
	waitForState(t, m, a, Completed, 10*time.Second)
	waitForState(t, m, b, Completed, 10*time.Second)
}

func TestLinearDownloadRetriesAfterInducedRequestFailure(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(64*1024), testutil.WithFailOnNthRequest(2))
	defer srv.Close()

	settings := DefaultSettings()
	settings.DownloadThreads = 1 // force the linear path, one GET per attempt
	settings.DownloadRetries = 3
	m := newTestManager(t, settings)

	dest := filepath.Join(t.TempDir(), "out.bin")
	id := m.Submit(srv.URL(), dest)

	g := waitForState(t, m, id, Completed, 5*time.Second)
	result := testutil.DownloadResult{BytesRead: g.Downloaded}
	require.NoError(t, testutil.AssertDownloadSuccess(result, 64*1024))
	assert.GreaterOrEqual(t, srv.Stats().FailedRequests, int64(1), "the induced failure should have actually fired")
}

func TestParallelDownloadResumesAfterByteCappedDisconnect(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(512*1024), testutil.WithFailAfterBytes(40*1024))
	defer srv.Close()

	settings := DefaultSettings()
	settings.DownloadThreads = 4
	settings.DownloadRetries = 8
	m := newTestManager(t, settings)

	dest := filepath.Join(t.TempDir(), "out.bin")
	id := m.Submit(srv.URL(), dest)

	g := waitForState(t, m, id, Completed, 10*time.Second)
	assert.Equal(t, int64(512*1024), g.Downloaded, "every segment must resume past the induced cutoff and finish")
}

func TestParallelDownloadRetriesUnderConcurrencyCap(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(256*1024), testutil.WithMaxConcurrentRequests(2))
	defer srv.Close()

	settings := DefaultSettings()
	settings.DownloadThreads = 6
	settings.DownloadRetries = 10
	m := newTestManager(t, settings)

	dest := filepath.Join(t.TempDir(), "out.bin")
	id := m.Submit(srv.URL(), dest)

	waitForState(t, m, id, Completed, 10*time.Second)
}

func TestStreamingMockServerDrivesFullManagerDownload(t *testing.T) {
	const fileSize = 8 * 1024 * 1024
	srv := testutil.NewStreamingMockServerT(t, fileSize)
	defer srv.Close()

	m := newTestManager(t, DefaultSettings())
	dest := filepath.Join(t.TempDir(), "out.bin")
	id := m.Submit(srv.URL(), dest)

	g := waitForState(t, m, id, Completed, 10*time.Second)
	assert.Equal(t, int64(fileSize), g.Downloaded)
}

func TestQueryURLReportsRangeSupport(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(4096), testutil.WithFilename("report.pdf"))
	defer srv.Close()

	m := newTestManager(t, DefaultSettings())
	result, err := m.QueryURL(context.Background(), srv.URL())
	require.NoError(t, err)
	assert.True(t, result.AcceptRange)
	assert.Equal(t, int64(4096), result.TotalSize)
}

func TestGlanceListsAllSubmittedJobs(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(1024))
	defer srv.Close()

	m := newTestManager(t, DefaultSettings())
	m.Submit(srv.URL(), filepath.Join(t.TempDir(), "a.bin"))
	m.Submit(srv.URL(), filepath.Join(t.TempDir(), "b.bin"))

	assert.Eventually(t, func() bool {
		return len(m.Glance()) == 2
	}, 5*time.Second, 10*time.Millisecond)
}
