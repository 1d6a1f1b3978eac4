// Package busserver is the orchestration-side surface of the wire
// contract: it consumes the reserved control, registration and result
// queues and maps messages onto the application services.
package busserver

import (
	"context"
	"errors"
	"fmt"
	"log"

	appregistry "github.com/bryanwahyu/scanfleet/internal/application/registry"
	appscans "github.com/bryanwahyu/scanfleet/internal/application/scans"
	"github.com/bryanwahyu/scanfleet/internal/domain/bus"
	"github.com/bryanwahyu/scanfleet/internal/domain/probes"
	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
	"github.com/bryanwahyu/scanfleet/internal/middleware"
)

type Server struct {
	Bus      bus.Bus
	Scans    *appscans.Service
	Registry *appregistry.Service
}

// Start subscribes the orchestration handlers. Consumers run until ctx
// is done.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Bus.Subscribe(ctx, bus.QueueControl, s.handleControl); err != nil {
		return err
	}
	if err := s.Bus.Subscribe(ctx, bus.QueueRegister, s.handleRegister); err != nil {
		return err
	}
	return s.Bus.Subscribe(ctx, bus.QueueResults, s.handleResult)
}

func (s *Server) handleControl(ctx context.Context, d bus.Delivery) error {
	switch d.Msg.Op {
	case bus.OpScanLaunch:
		return s.handleLaunch(ctx, d)
	case bus.OpScanCancel:
		return s.handleCancel(ctx, d)
	case bus.OpScanProgress:
		return s.handleProgress(ctx, d)
	case bus.OpProbeList:
		return s.handleProbeList(ctx, d)
	default:
		log.Printf("busserver: unknown control op %q", d.Msg.Op)
		return nil
	}
}

// scan_launch args: scan_id [, probe_list, force]
func (s *Server) handleLaunch(ctx context.Context, d bus.Delivery) error {
	scanID, err := d.Msg.StringArg(0)
	if err != nil {
		return s.replyError(ctx, d, err)
	}
	var probeList []string
	if len(d.Msg.Args) > 1 {
		if err := d.Msg.Arg(1, &probeList); err != nil {
			return s.replyError(ctx, d, err)
		}
	}
	var force bool
	if len(d.Msg.Args) > 2 {
		if err := d.Msg.Arg(2, &force); err != nil {
			return s.replyError(ctx, d, err)
		}
	}

	dispatched, err := s.Scans.Launch(ctx, domain.ScanID(scanID), probeList, force)
	if err != nil {
		return s.fail(ctx, d, err)
	}
	middleware.IncrementScansLaunched()
	middleware.AddJobsDispatched(uint64(dispatched))
	return s.reply(ctx, d, map[string]any{"scan_id": scanID, "dispatched": dispatched})
}

// scan_cancel args: scan_id
func (s *Server) handleCancel(ctx context.Context, d bus.Delivery) error {
	scanID, err := d.Msg.StringArg(0)
	if err != nil {
		return s.replyError(ctx, d, err)
	}
	summary, err := s.Scans.Cancel(ctx, domain.ScanID(scanID))
	if err != nil {
		return s.fail(ctx, d, err)
	}
	if summary.Warning == "" {
		middleware.IncrementScansCancelled()
	}
	return s.reply(ctx, d, summary)
}

// scan_progress args: scan_id
func (s *Server) handleProgress(ctx context.Context, d bus.Delivery) error {
	scanID, err := d.Msg.StringArg(0)
	if err != nil {
		return s.replyError(ctx, d, err)
	}
	progress, err := s.Scans.Progress(ctx, domain.ScanID(scanID))
	if err != nil {
		return s.fail(ctx, d, err)
	}
	return s.reply(ctx, d, progress)
}

func (s *Server) handleProbeList(ctx context.Context, d bus.Delivery) error {
	names, err := s.Registry.List(ctx)
	if err != nil {
		return s.fail(ctx, d, err)
	}
	return s.reply(ctx, d, names)
}

// register_probe args: name, display_name, category, mimetype_pattern
func (s *Server) handleRegister(ctx context.Context, d bus.Delivery) error {
	name, err := d.Msg.StringArg(0)
	if err != nil {
		return err
	}
	display, err := d.Msg.StringArg(1)
	if err != nil {
		return err
	}
	category, err := d.Msg.StringArg(2)
	if err != nil {
		return err
	}
	// A null pattern means the probe applies to everything.
	var pattern *string
	if len(d.Msg.Args) > 3 {
		if err := d.Msg.Arg(3, &pattern); err != nil {
			return err
		}
	}

	p := &probes.Probe{
		Name:        name,
		DisplayName: display,
		Category:    probes.Category(category),
	}
	if pattern != nil {
		p.MimetypeRegexp = *pattern
	}
	if err := s.Registry.Register(ctx, p); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			log.Printf("busserver: rejecting probe registration: %v", err)
			return nil
		}
		return err
	}
	middleware.IncrementProbesRegistered()
	return nil
}

// scan_result / scan_result_error args: file_ref, probe_name, result
func (s *Server) handleResult(ctx context.Context, d bus.Delivery) error {
	var ref domain.FileRef
	if err := d.Msg.Arg(0, &ref); err != nil {
		log.Printf("busserver: %v", err)
		return nil
	}
	probe, err := d.Msg.StringArg(1)
	if err != nil {
		log.Printf("busserver: %v", err)
		return nil
	}
	var res domain.Result
	if err := d.Msg.Arg(2, &res); err != nil {
		log.Printf("busserver: %v", err)
		return nil
	}

	failed := d.Msg.Op == bus.OpScanResultError
	if err := s.Scans.OnResult(ctx, ref, probe, res, failed); err != nil {
		// Returned errors requeue the delivery; OnResult is idempotent.
		return err
	}
	middleware.IncrementResultsReceived()
	return nil
}

// fail answers validation/transition conditions synchronously and hands
// everything else back to the delivery retry.
func (s *Server) fail(ctx context.Context, d bus.Delivery, err error) error {
	var verr *domain.ValidationError
	var terr *domain.InvalidTransitionError
	if errors.As(err, &verr) || errors.As(err, &terr) {
		return s.replyError(ctx, d, err)
	}
	return err
}

func (s *Server) reply(ctx context.Context, d bus.Delivery, payload any) error {
	if d.Msg.ReplyTo == "" {
		return nil
	}
	msg, err := bus.New(d.Msg.Op, payload)
	if err != nil {
		return err
	}
	if _, err := s.Bus.Publish(ctx, d.Msg.ReplyTo, msg); err != nil {
		return fmt.Errorf("reply to %s: %w", d.Msg.ReplyTo, err)
	}
	return nil
}

// replyError surfaces a status label plus human-readable detail, never a
// raw stack trace.
func (s *Server) replyError(ctx context.Context, d bus.Delivery, cause error) error {
	log.Printf("busserver: %s: %v", d.Msg.Op, cause)
	return s.reply(ctx, d, map[string]string{"error": cause.Error()})
}
