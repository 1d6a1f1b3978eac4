package scans_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

func TestEmittedFilesAreResubmitted(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.registry.online = []string{"unzip"}
	ctx := context.Background()

	scan, files := e.seedScan(t, 1, "application/zip")
	_, err := e.svc.Launch(ctx, scan.ID, nil, false)
	require.NoError(t, err)

	res := domain.Result{
		Doc: `{"members":1}`,
		OutputFiles: []domain.OutputFile{
			{ContentHash: "inner-hash", Mimetype: "application/pdf", Handle: string(scan.ID) + "/inner"},
		},
	}
	require.NoError(t, e.svc.OnResult(ctx, files[0].Ref(), "unzip", res, false))
	assert.Equal(t, domain.StatusLaunched, e.scans.status(scan.ID), "emitted file keeps the scan open")

	all, err := e.files.ListByScan(ctx, scan.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)

	inner := all[1]
	assert.Equal(t, 1, inner.Depth)
	assert.Equal(t, "inner-hash", inner.ContentHash)
	assert.NotZero(t, inner.ParentJobID, "lineage points at the emitting job")
	assert.Equal(t, string(scan.ID)+"/inner", inner.Handle, "probe-supplied blob handle is kept")

	jobs, _ := e.jobs.ListByScan(ctx, scan.ID)
	require.Len(t, jobs, 2)

	require.NoError(t, e.svc.OnResult(ctx, inner.Ref(), "unzip", domain.Result{Doc: `{}`}, false))
	assert.Equal(t, domain.StatusProcessed, e.scans.status(scan.ID))
}

func TestEmittedFilesDroppedAtDepthBound(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.registry.online = []string{"unzip"}
	e.svc.MaxResubmitDepth = 0
	ctx := context.Background()

	scan, files := e.seedScan(t, 1, "application/zip")
	_, err := e.svc.Launch(ctx, scan.ID, nil, false)
	require.NoError(t, err)

	res := domain.Result{
		Doc: `{}`,
		OutputFiles: []domain.OutputFile{
			{ContentHash: "deep", Mimetype: "application/zip", Handle: string(scan.ID) + "/deep"},
		},
	}
	require.NoError(t, e.svc.OnResult(ctx, files[0].Ref(), "unzip", res, false))

	all, _ := e.files.ListByScan(ctx, scan.ID)
	assert.Len(t, all, 1, "past the bound emitted files are dropped, not rejected")
	assert.Equal(t, domain.StatusProcessed, e.scans.status(scan.ID), "the drop does not stall completion")
}
