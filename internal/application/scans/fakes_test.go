package scans_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	appquota "github.com/bryanwahyu/scanfleet/internal/application/quota"
	appscans "github.com/bryanwahyu/scanfleet/internal/application/scans"
	"github.com/bryanwahyu/scanfleet/internal/domain/bus"
	domain "github.com/bryanwahyu/scanfleet/internal/domain/scans"
	"github.com/bryanwahyu/scanfleet/internal/domain/users"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeScanRepo struct {
	mu    sync.Mutex
	scans map[domain.ScanID]*domain.Scan
}

func newFakeScanRepo() *fakeScanRepo {
	return &fakeScanRepo{scans: make(map[domain.ScanID]*domain.Scan)}
}

func (r *fakeScanRepo) Save(_ context.Context, s *domain.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.scans[s.ID] = &cp
	return nil
}

func (r *fakeScanRepo) Get(_ context.Context, id domain.ScanID) (*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (r *fakeScanRepo) UpdateStatus(_ context.Context, id domain.ScanID, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	return nil
}

func (r *fakeScanRepo) status(id domain.ScanID) domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans[id].Status
}

type fakeFileRepo struct {
	mu      sync.Mutex
	files   map[domain.FileID]*domain.File
	order   []domain.FileID
	results map[domain.FileID][]*domain.ProbeResult
}

func newFakeFileRepo() *fakeFileRepo {
	return &fakeFileRepo{
		files:   make(map[domain.FileID]*domain.File),
		results: make(map[domain.FileID][]*domain.ProbeResult),
	}
}

func (r *fakeFileRepo) Save(_ context.Context, f *domain.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[f.ID]; !ok {
		r.order = append(r.order, f.ID)
	}
	cp := *f
	r.files[f.ID] = &cp
	return nil
}

func (r *fakeFileRepo) Get(_ context.Context, id domain.FileID) (*domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFileRepo) ListByScan(_ context.Context, id domain.ScanID) ([]*domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.File
	for _, fid := range r.order {
		if f := r.files[fid]; f.ScanID == id {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) AttachResult(_ context.Context, pr *domain.ProbeResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *pr
	for i, existing := range r.results[pr.FileID] {
		if existing.Probe == pr.Probe {
			r.results[pr.FileID][i] = &cp
			return nil
		}
	}
	r.results[pr.FileID] = append(r.results[pr.FileID], &cp)
	return nil
}

func (r *fakeFileRepo) ListResults(_ context.Context, id domain.FileID) ([]*domain.ProbeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.ProbeResult(nil), r.results[id]...), nil
}

type fakeJobRepo struct {
	mu     sync.Mutex
	jobs   []*domain.Job
	nextID int64
	scans  *fakeScanRepo
}

func newFakeJobRepo(scans *fakeScanRepo) *fakeJobRepo {
	return &fakeJobRepo{scans: scans}
}

func (r *fakeJobRepo) Create(_ context.Context, j *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	j.ID = domain.JobID(r.nextID)
	cp := *j
	r.jobs = append(r.jobs, &cp)
	return nil
}

func (r *fakeJobRepo) SetTaskHandle(_ context.Context, id domain.JobID, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			j.TaskHandle = handle
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *fakeJobRepo) GetByFileProbe(_ context.Context, fileID domain.FileID, probe string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.jobs) - 1; i >= 0; i-- {
		if r.jobs[i].FileID == fileID && r.jobs[i].Probe == probe {
			cp := *r.jobs[i]
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeJobRepo) ListByScan(_ context.Context, id domain.ScanID) ([]*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Job
	for _, j := range r.jobs {
		if j.ScanID == id {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) MarkDone(_ context.Context, id domain.JobID, status domain.JobStatus, endedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID != id {
			continue
		}
		if j.Status != domain.JobRunning {
			return false, nil
		}
		j.Status = status
		j.EndedAt = endedAt
		return true, nil
	}
	return false, sql.ErrNoRows
}

func (r *fakeJobRepo) CountRunningByProbe(_ context.Context, probe string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.jobs {
		if j.Probe == probe && j.Status == domain.JobRunning {
			n++
		}
	}
	return n, nil
}

func (r *fakeJobRepo) CountByUserSince(ctx context.Context, user string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.jobs {
		s, err := r.scans.Get(ctx, j.ScanID)
		if err != nil {
			continue
		}
		if s.User == user && !j.StartedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeJobRepo) DeleteByScan(_ context.Context, id domain.ScanID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*domain.Job
	for _, j := range r.jobs {
		if j.ScanID != id {
			kept = append(kept, j)
		}
	}
	r.jobs = kept
	return nil
}

type fakeUserRepo struct {
	users map[string]*users.User
}

func (r *fakeUserRepo) Save(_ context.Context, u *users.User) error {
	cp := *u
	r.users[u.Key] = &cp
	return nil
}

func (r *fakeUserRepo) Get(_ context.Context, key string) (*users.User, error) {
	u, ok := r.users[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

// fakeRegistry resolves probes by exact mimetype.
type fakeRegistry struct {
	online  []string
	resolve map[string][]string
}

func (r *fakeRegistry) List(_ context.Context) ([]string, error) {
	return append([]string(nil), r.online...), nil
}

func (r *fakeRegistry) Resolve(_ context.Context, f *domain.File) ([]string, error) {
	if r.resolve == nil {
		return append([]string(nil), r.online...), nil
	}
	return append([]string(nil), r.resolve[f.Mimetype]...), nil
}

type fakeQuota struct {
	remaining int
}

func (q *fakeQuota) Remaining(_ context.Context, _ string) (int, error) {
	return q.remaining, nil
}

type publication struct {
	queue  string
	msg    bus.Message
	handle string
}

type fakeBus struct {
	mu        sync.Mutex
	published []publication
	revoked   []string
	n         int
}

func (b *fakeBus) Publish(_ context.Context, queue string, msg bus.Message) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	p := publication{queue: queue, msg: msg, handle: fmt.Sprintf("h%d", b.n)}
	b.published = append(b.published, p)
	return p.handle, nil
}

func (b *fakeBus) Subscribe(_ context.Context, _ string, _ bus.Handler) error { return nil }

func (b *fakeBus) Queues(_ context.Context) ([]string, error) { return nil, nil }

func (b *fakeBus) Revoke(_ context.Context, handles []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked = append(b.revoked, handles...)
	return nil
}

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string]bool
	removed   []string
	uploadErr error
	onUpload  func()
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: make(map[string]bool)} }

func blobKey(namespace, handle string) string { return namespace + "/" + handle }

func (s *fakeBlobs) put(namespace, handle string) {
	s.mu.Lock()
	s.objects[blobKey(namespace, handle)] = true
	s.mu.Unlock()
}

func (s *fakeBlobs) Upload(_ context.Context, namespace, _ string, handle string) error {
	if s.onUpload != nil {
		s.onUpload()
	}
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.put(namespace, handle)
	return nil
}

func (s *fakeBlobs) Download(_ context.Context, namespace, handle string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.objects[blobKey(namespace, handle)] {
		return nil, fmt.Errorf("no such object %s", handle)
	}
	return []byte("content"), nil
}

func (s *fakeBlobs) Stat(_ context.Context, namespace, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.objects[blobKey(namespace, handle)] {
		return fmt.Errorf("no such object %s", handle)
	}
	return nil
}

func (s *fakeBlobs) RemovePrefix(_ context.Context, namespace, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, blobKey(namespace, prefix))
	for key := range s.objects {
		if strings.HasPrefix(key, blobKey(namespace, prefix)) {
			delete(s.objects, key)
		}
	}
	return nil
}

// env bundles one Service instance over fakes, pre-seeded with a single
// unlimited-quota submitter.
type env struct {
	scans    *fakeScanRepo
	files    *fakeFileRepo
	jobs     *fakeJobRepo
	users    *fakeUserRepo
	registry *fakeRegistry
	quota    *fakeQuota
	bus      *fakeBus
	blobs    *fakeBlobs
	clock    *fakeClock
	svc      *appscans.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()

	scanRepo := newFakeScanRepo()
	e := &env{
		scans: scanRepo,
		files: newFakeFileRepo(),
		jobs:  newFakeJobRepo(scanRepo),
		users: &fakeUserRepo{users: map[string]*users.User{
			"alice": {Key: "alice", DisplayName: "Alice", Namespace: "ns-alice"},
		}},
		registry: &fakeRegistry{online: []string{"clamav", "exif"}},
		quota:    &fakeQuota{remaining: appquota.Unlimited},
		bus:      &fakeBus{},
		blobs:    newFakeBlobs(),
		clock:    &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	e.svc = &appscans.Service{
		Scans:            e.scans,
		Files:            e.files,
		Jobs:             e.jobs,
		Users:            e.users,
		Registry:         e.registry,
		Quota:            e.quota,
		Bus:              e.bus,
		Blobs:            e.blobs,
		Clock:            e.clock,
		MaxResubmitDepth: 3,
	}
	return e
}

// seedScan creates a scan with n uploaded files of the given mimetype and
// their blobs present in storage.
func (e *env) seedScan(t *testing.T, n int, mimetype string) (*domain.Scan, []*domain.File) {
	t.Helper()
	ctx := context.Background()

	scan, err := e.svc.Create(ctx, "alice", "127.0.0.1")
	if err != nil {
		t.Fatalf("create scan: %v", err)
	}
	var files []*domain.File
	for i := 0; i < n; i++ {
		f, err := e.svc.AddFile(ctx, scan.ID, fmt.Sprintf("hash-%d", i), mimetype)
		if err != nil {
			t.Fatalf("add file: %v", err)
		}
		e.blobs.put("ns-alice", f.Handle)
		files = append(files, f)
	}
	return scan, files
}
