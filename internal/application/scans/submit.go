package scans

import (
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
)

// Create registers a new empty scan for the submitter.
func (s *Service) Create(ctx context.Context, userKey, clientIP string) (*domain.Scan, error) {
	if _, err := s.Users.Get(ctx, userKey); err != nil {
		return nil, domain.Validationf("unknown submitter %q", userKey)
	}

	scan := &domain.Scan{
		ID:        domain.ScanID(uuid.New().String()),
		User:      userKey,
		CreatedAt: s.Clock.Now(),
		Status:    domain.StatusEmpty,
		ClientIP:  clientIP,
	}
	if err := s.Scans.Save(ctx, scan); err != nil {
		return nil, fmt.Errorf("create scan: %w", err)
	}
	return scan, nil
}

// AddFile attaches a submission unit to the scan. The first file moves the
// scan from empty to ready.
func (s *Service) AddFile(ctx context.Context, scanID domain.ScanID, contentHash, mimetype string) (*domain.File, error) {
	unlock := s.lock(scanID)
	defer unlock()

	scan, err := s.Scans.Get(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if scan.Status != domain.StatusEmpty && scan.Status != domain.StatusReady {
		return nil, &domain.InvalidTransitionError{From: scan.Status, To: domain.StatusReady}
	}

	f := &domain.File{
		ID:          domain.FileID(uuid.New().String()),
		ScanID:      scanID,
		ContentHash: contentHash,
		Mimetype:    mimetype,
	}
	f.Handle = path.Join(string(scanID), string(f.ID))
	if err := s.Files.Save(ctx, f); err != nil {
		return nil, fmt.Errorf("add file: %w", err)
	}

	scan.FileCount++
	if scan.Status == domain.StatusEmpty {
		if err := scan.TransitionTo(domain.StatusReady); err != nil {
			return nil, err
		}
	}
	if err := s.Scans.Save(ctx, scan); err != nil {
		return nil, err
	}
	return f, nil
}

// UploadFile pushes the file's content blob into the submitter's storage
// namespace. A transport failure forces the scan into error_ftp_upload.
func (s *Service) UploadFile(ctx context.Context, scanID domain.ScanID, fileID domain.FileID, localPath string) error {
	scan, err := s.Scans.Get(ctx, scanID)
	if err != nil {
		return err
	}
	u, err := s.Users.Get(ctx, scan.User)
	if err != nil {
		return err
	}
	f, err := s.Files.Get(ctx, fileID)
	if err != nil {
		return err
	}

	// No scan lock across the storage round trip. The failure path re-reads
	// the scan under the lock so a transition that raced is not clobbered.
	if err := s.Blobs.Upload(ctx, u.Namespace, localPath, f.Handle); err != nil {
		unlock := s.lock(scanID)
		if cur, gerr := s.Scans.Get(ctx, scanID); gerr == nil {
			s.fail(ctx, cur, domain.StatusFTPUpload)
		}
		unlock()
		return &domain.UploadError{Err: err}
	}
	return nil
}

// MarkUploaded records that every file blob of the scan is in storage.
func (s *Service) MarkUploaded(ctx context.Context, scanID domain.ScanID) error {
	unlock := s.lock(scanID)
	defer unlock()

	scan, err := s.Scans.Get(ctx, scanID)
	if err != nil {
		return err
	}
	if err := scan.TransitionTo(domain.StatusUploaded); err != nil {
		return err
	}
	return s.Scans.UpdateStatus(ctx, scanID, domain.StatusUploaded)
}
