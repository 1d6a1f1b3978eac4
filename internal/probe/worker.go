// Package probe hosts the worker-side helper for building analysis
// services: it handles registration, work item consumption and result
// reporting, so a probe only supplies its Analyze function.
package probe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/scanfleet/internal/domain/bus"
	"github.com/bryanwahyu/scanfleet/internal/domain/probes"
	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

// Emitted is a derived artifact produced during analysis, for example a
// member extracted from an archive. The worker uploads it and the
// orchestrator resubmits it as a new file of the same scan.
type Emitted struct {
	Content  []byte
	Mimetype string
}

// Analysis is the outcome of one work item.
type Analysis struct {
	StatusCode int
	Doc        string
	Emitted    []Emitted
}

// AnalyzeFunc inspects one file's content.
type AnalyzeFunc func(ctx context.Context, data []byte) (*Analysis, error)

// Worker consumes work items addressed to one probe.
type Worker struct {
	Probe   probes.Probe
	Bus     bus.Bus
	Blobs   domain.BlobStore
	Analyze AnalyzeFunc
}

// Start registers the probe and subscribes its work queue. The queue name
// is the probe name; discovery picks it up on the next refresh.
func (w *Worker) Start(ctx context.Context) error {
	if bus.Reserved(w.Probe.Name) {
		return fmt.Errorf("probe name %q is reserved", w.Probe.Name)
	}

	var pattern *string
	if w.Probe.MimetypeRegexp != "" {
		pattern = &w.Probe.MimetypeRegexp
	}
	msg, err := bus.New(bus.OpRegisterProbe, w.Probe.Name, w.Probe.DisplayName, string(w.Probe.Category), pattern)
	if err != nil {
		return err
	}
	if _, err := w.Bus.Publish(ctx, bus.QueueRegister, msg); err != nil {
		return fmt.Errorf("register probe %s: %w", w.Probe.Name, err)
	}

	return w.Bus.Subscribe(ctx, w.Probe.Name, w.handle)
}

// probe_scan args: namespace, file_ref
func (w *Worker) handle(ctx context.Context, d bus.Delivery) error {
	if d.Msg.Op != bus.OpProbeScan {
		log.Printf("probe %s: unknown op %q", w.Probe.Name, d.Msg.Op)
		return nil
	}
	namespace, err := d.Msg.StringArg(0)
	if err != nil {
		return err
	}
	var ref domain.FileRef
	if err := d.Msg.Arg(1, &ref); err != nil {
		return err
	}

	started := time.Now()
	res, failed := w.analyze(ctx, namespace, ref)
	res.DurationMS = time.Since(started).Milliseconds()

	op := bus.OpScanResult
	if failed {
		op = bus.OpScanResultError
	}
	msg, err := bus.New(op, ref, w.Probe.Name, res)
	if err != nil {
		return err
	}
	if _, err := w.Bus.Publish(ctx, bus.QueueResults, msg); err != nil {
		return fmt.Errorf("report result for %s: %w", ref.File, err)
	}
	return nil
}

func (w *Worker) analyze(ctx context.Context, namespace string, ref domain.FileRef) (domain.Result, bool) {
	data, err := w.Blobs.Download(ctx, namespace, ref.Blob)
	if err != nil {
		return errorResult(fmt.Errorf("download %s: %w", ref.Blob, err)), true
	}

	a, err := w.Analyze(ctx, data)
	if err != nil {
		return errorResult(err), true
	}

	res := domain.Result{StatusCode: a.StatusCode, Doc: a.Doc}
	for _, e := range a.Emitted {
		out, err := w.uploadEmitted(ctx, namespace, ref, e)
		if err != nil {
			return errorResult(err), true
		}
		res.OutputFiles = append(res.OutputFiles, out)
	}
	return res, false
}

// uploadEmitted stores a derived artifact under the parent scan's prefix
// so a flush removes it together with the submitted blobs.
func (w *Worker) uploadEmitted(ctx context.Context, namespace string, ref domain.FileRef, e Emitted) (domain.OutputFile, error) {
	sum := sha256.Sum256(e.Content)
	handle := path.Join(string(ref.Scan), uuid.New().String())

	tmp, err := os.CreateTemp("", "probe-emit-*")
	if err != nil {
		return domain.OutputFile{}, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(e.Content); err != nil {
		tmp.Close()
		return domain.OutputFile{}, err
	}
	if err := tmp.Close(); err != nil {
		return domain.OutputFile{}, err
	}

	if err := w.Blobs.Upload(ctx, namespace, tmp.Name(), handle); err != nil {
		return domain.OutputFile{}, fmt.Errorf("upload emitted file: %w", err)
	}
	return domain.OutputFile{
		ContentHash: hex.EncodeToString(sum[:]),
		Mimetype:    e.Mimetype,
		Handle:      handle,
	}, nil
}

func errorResult(err error) domain.Result {
	return domain.Result{
		StatusCode: 1,
		Doc:        fmt.Sprintf(`{"error":%q}`, err.Error()),
	}
}
