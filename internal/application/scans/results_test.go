package scans_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

func TestOnResultRecordsAndSettles(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	var hooked []domain.ScanID
	e.svc.Hook = func(_ context.Context, scan *domain.Scan) {
		hooked = append(hooked, scan.ID)
	}

	scan, files := e.seedScan(t, 1, "application/pdf")
	_, err := e.svc.Launch(ctx, scan.ID, nil, false)
	require.NoError(t, err)

	ref := files[0].Ref()
	res := domain.Result{StatusCode: 0, Doc: `{"infected":false}`, DurationMS: 12}

	require.NoError(t, e.svc.OnResult(ctx, ref, "clamav", res, false))
	assert.Equal(t, domain.StatusLaunched, e.scans.status(scan.ID), "one of two jobs outstanding")
	assert.Empty(t, hooked)

	require.NoError(t, e.svc.OnResult(ctx, ref, "exif", res, false))
	assert.Equal(t, domain.StatusProcessed, e.scans.status(scan.ID))
	assert.Equal(t, []domain.ScanID{scan.ID}, hooked, "completion hook fires once at processed")
	assert.Contains(t, e.blobs.removed, "ns-alice/"+string(scan.ID), "transient blobs released")

	results, err := e.files.ListResults(ctx, files[0].ID)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestOnResultIdempotent(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	scan, files := e.seedScan(t, 1, "application/pdf")
	_, err := e.svc.Launch(ctx, scan.ID, nil, false)
	require.NoError(t, err)

	ref := files[0].Ref()
	res := domain.Result{Doc: `{}`}
	require.NoError(t, e.svc.OnResult(ctx, ref, "clamav", res, false))
	require.NoError(t, e.svc.OnResult(ctx, ref, "clamav", res, false), "redelivery is harmless")

	results, _ := e.files.ListResults(ctx, files[0].ID)
	assert.Len(t, results, 1)

	p, err := e.svc.Progress(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, 1, p.Finished, "no double counting")
}

func TestOnResultIgnoredAfterCancel(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	scan, files := e.seedScan(t, 1, "application/pdf")
	_, err := e.svc.Launch(ctx, scan.ID, nil, false)
	require.NoError(t, err)

	_, err = e.svc.Cancel(ctx, scan.ID)
	require.NoError(t, err)

	ref := files[0].Ref()
	require.NoError(t, e.svc.OnResult(ctx, ref, "clamav", domain.Result{Doc: `{}`}, false))

	results, _ := e.files.ListResults(ctx, files[0].ID)
	assert.Empty(t, results, "a revoked worker's late result is dropped")
}

func TestOnResultUnknownScan(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	ref := domain.FileRef{Scan: "ghost", File: "f1", Blob: "ghost/f1"}
	err := e.svc.OnResult(context.Background(), ref, "clamav", domain.Result{}, false)
	assert.NoError(t, err, "unknown scan is logged, not requeued")
}

func TestOnResultFailedJobCountsTowardsCompletion(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.registry.online = []string{"clamav"}
	ctx := context.Background()

	scan, files := e.seedScan(t, 1, "application/pdf")
	_, err := e.svc.Launch(ctx, scan.ID, nil, false)
	require.NoError(t, err)

	ref := files[0].Ref()
	require.NoError(t, e.svc.OnResult(ctx, ref, "clamav", domain.Result{StatusCode: 1, Doc: `{"error":"timeout"}`}, true))
	assert.Equal(t, domain.StatusProcessed, e.scans.status(scan.ID), "a failed job still finishes the scan")

	p, err := e.svc.Progress(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Finished)
	assert.Zero(t, p.Successful)
}

func TestProgressAdvancesProcessedToFinished(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.registry.online = []string{"clamav"}
	ctx := context.Background()

	scan, files := e.seedScan(t, 1, "application/pdf")
	_, err := e.svc.Launch(ctx, scan.ID, nil, false)
	require.NoError(t, err)
	require.NoError(t, e.svc.OnResult(ctx, files[0].Ref(), "clamav", domain.Result{Doc: `{}`}, false))
	require.Equal(t, domain.StatusProcessed, e.scans.status(scan.ID))

	p, err := e.svc.Progress(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, p.Status, "reading progress settles processed")
	assert.Equal(t, domain.StatusFinished, e.scans.status(scan.ID))
}
