package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sumire/defects/internal/domain"
)

// world is an in-memory database shared by the fake stores.
type world struct {
	mu          sync.Mutex
	seq         int64
	now         time.Time
	users       map[int64]domain.User
	projects    map[int64]domain.Project
	stages      map[int64]domain.Stage
	defects     map[int64]domain.Defect
	comments    map[int64]domain.Comment
	attachments map[int64]domain.Attachment
	history     []domain.ChangeEntry
}

func newWorld() *world {
	return &world{
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		users:       map[int64]domain.User{},
		projects:    map[int64]domain.Project{},
		stages:      map[int64]domain.Stage{},
		defects:     map[int64]domain.Defect{},
		comments:    map[int64]domain.Comment{},
		attachments: map[int64]domain.Attachment{},
	}
}

func (w *world) nextID() int64 {
	w.seq++
	return w.seq
}

func (w *world) clock() time.Time {
	return w.now
}

func (w *world) userRef(id int64) domain.UserRef {
	return domain.UserRef{ID: id, Username: w.users[id].Username}
}

func (w *world) addUser(username string, role domain.Role) domain.User {
	w.mu.Lock()
	defer w.mu.Unlock()
	u := domain.User{ID: w.nextID(), Username: username, Role: role, CreatedAt: w.now, UpdatedAt: w.now}
	w.users[u.ID] = u
	return u
}

func (w *world) addProject(name string, createdBy int64) domain.Project {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := domain.Project{ID: w.nextID(), Name: name, Status: domain.ProjectStatusActive, CreatedBy: createdBy, CreatedAt: w.now, UpdatedAt: w.now}
	w.projects[p.ID] = p
	return p
}

func (w *world) addStage(projectID int64, name string) domain.Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := domain.Stage{ID: w.nextID(), ProjectID: projectID, Name: name, Status: domain.StageStatusPending, CreatedAt: w.now, UpdatedAt: w.now}
	w.stages[s.ID] = s
	return s
}

func (w *world) historyFor(defectID int64) []domain.ChangeEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.ChangeEntry
	for _, e := range w.history {
		if e.DefectID == defectID {
			out = append(out, e)
		}
	}
	return out
}

// fakeTx runs fn directly; the fakes have no rollback.
type fakeTx struct{ calls int }

func (t *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fakeUsers struct{ w *world }

func (s fakeUsers) FindByID(_ context.Context, id int64) (*domain.User, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	u, ok := s.w.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (s fakeUsers) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, u := range s.w.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s fakeUsers) FindByProviderID(_ context.Context, provider domain.AuthProvider, providerID string) (*domain.User, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, u := range s.w.users {
		if u.Provider != nil && *u.Provider == provider && u.ProviderID != nil && *u.ProviderID == providerID {
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s fakeUsers) Create(_ context.Context, user domain.User) (*domain.User, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, u := range s.w.users {
		if u.Username == user.Username {
			return nil, domain.ErrConflict
		}
	}
	user.ID = s.w.nextID()
	user.CreatedAt, user.UpdatedAt = s.w.now, s.w.now
	s.w.users[user.ID] = user
	return &user, nil
}

type fakeProjects struct{ w *world }

func (s fakeProjects) List(_ context.Context, f domain.ProjectFilter) ([]domain.ProjectView, int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []domain.ProjectView
	for _, p := range s.w.projects {
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, domain.ProjectView{Project: p, Creator: s.w.userRef(p.CreatedBy)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (s fakeProjects) FindByID(_ context.Context, id int64) (*domain.Project, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	p, ok := s.w.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s fakeProjects) FindView(ctx context.Context, id int64) (*domain.ProjectView, error) {
	p, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return &domain.ProjectView{Project: *p, Creator: s.w.userRef(p.CreatedBy)}, nil
}

func (s fakeProjects) Create(_ context.Context, p domain.Project) (*domain.Project, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	p.ID = s.w.nextID()
	p.CreatedAt, p.UpdatedAt = s.w.now, s.w.now
	s.w.projects[p.ID] = p
	return &p, nil
}

func (s fakeProjects) Update(_ context.Context, p domain.Project) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, ok := s.w.projects[p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.w.projects[p.ID] = p
	return nil
}

// Delete cascades like the schema's foreign keys.
func (s fakeProjects) Delete(_ context.Context, id int64) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, ok := s.w.projects[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.w.projects, id)
	for sid, st := range s.w.stages {
		if st.ProjectID == id {
			delete(s.w.stages, sid)
		}
	}
	for did, d := range s.w.defects {
		if d.ProjectID == id {
			s.w.deleteDefectLocked(did)
		}
	}
	return nil
}

type fakeStages struct{ w *world }

func (s fakeStages) ListByProject(_ context.Context, projectID int64) ([]domain.Stage, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []domain.Stage
	for _, st := range s.w.stages {
		if st.ProjectID == projectID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s fakeStages) FindByID(_ context.Context, id int64) (*domain.Stage, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	st, ok := s.w.stages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

func (s fakeStages) FindDetail(ctx context.Context, id int64) (*domain.StageDetail, error) {
	st, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	p := s.w.projects[st.ProjectID]
	return &domain.StageDetail{Stage: *st, Project: domain.ProjectRef{ID: p.ID, Name: p.Name}}, nil
}

func (s fakeStages) Create(_ context.Context, st domain.Stage) (*domain.Stage, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	st.ID = s.w.nextID()
	st.CreatedAt, st.UpdatedAt = s.w.now, s.w.now
	s.w.stages[st.ID] = st
	return &st, nil
}

func (s fakeStages) Update(_ context.Context, st domain.Stage) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, ok := s.w.stages[st.ID]; !ok {
		return domain.ErrNotFound
	}
	s.w.stages[st.ID] = st
	return nil
}

func (s fakeStages) Delete(_ context.Context, id int64) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, ok := s.w.stages[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.w.stages, id)
	return nil
}

func (s fakeStages) CountDefects(_ context.Context, id int64) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var n int64
	for _, d := range s.w.defects {
		if d.StageID != nil && *d.StageID == id {
			n++
		}
	}
	return n, nil
}

type fakeDefects struct{ w *world }

func (s fakeDefects) viewLocked(d domain.Defect) domain.DefectView {
	p := s.w.projects[d.ProjectID]
	v := domain.DefectView{
		Defect:   d,
		Project:  domain.ProjectRef{ID: p.ID, Name: p.Name},
		Reporter: s.w.userRef(d.ReporterID),
	}
	if d.StageID != nil {
		st := s.w.stages[*d.StageID]
		v.Stage = &domain.StageRef{ID: st.ID, Name: st.Name}
	}
	if d.AssigneeID != nil {
		ref := s.w.userRef(*d.AssigneeID)
		v.Assignee = &ref
	}
	return v
}

func (s fakeDefects) List(_ context.Context, f domain.DefectFilter) ([]domain.DefectView, int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []domain.DefectView
	for _, d := range s.w.defects {
		if f.ProjectID != nil && d.ProjectID != *f.ProjectID {
			continue
		}
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		out = append(out, s.viewLocked(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (s fakeDefects) FindByID(_ context.Context, id int64) (*domain.Defect, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	d, ok := s.w.defects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (s fakeDefects) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Defect, error) {
	return s.FindByID(ctx, id)
}

func (s fakeDefects) FindView(_ context.Context, id int64) (*domain.DefectView, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	d, ok := s.w.defects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	v := s.viewLocked(d)
	return &v, nil
}

func (s fakeDefects) Create(_ context.Context, d domain.Defect) (*domain.Defect, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	d.ID = s.w.nextID()
	d.CreatedAt, d.UpdatedAt = s.w.now, s.w.now
	s.w.defects[d.ID] = d
	return &d, nil
}

func (s fakeDefects) Update(_ context.Context, d domain.Defect) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, ok := s.w.defects[d.ID]; !ok {
		return domain.ErrNotFound
	}
	d.UpdatedAt = s.w.now
	s.w.defects[d.ID] = d
	return nil
}

func (s fakeDefects) Delete(_ context.Context, id int64) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, ok := s.w.defects[id]; !ok {
		return domain.ErrNotFound
	}
	s.w.deleteDefectLocked(id)
	return nil
}

func (w *world) deleteDefectLocked(id int64) {
	delete(w.defects, id)
	for cid, c := range w.comments {
		if c.DefectID == id {
			delete(w.comments, cid)
		}
	}
	for aid, a := range w.attachments {
		if a.DefectID == id {
			delete(w.attachments, aid)
		}
	}
	kept := w.history[:0]
	for _, e := range w.history {
		if e.DefectID != id {
			kept = append(kept, e)
		}
	}
	w.history = kept
}

type fakeComments struct{ w *world }

func (s fakeComments) Create(_ context.Context, c domain.Comment) (*domain.CommentView, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	c.ID = s.w.nextID()
	c.CreatedAt = s.w.now
	s.w.comments[c.ID] = c
	return &domain.CommentView{Comment: c, Author: s.w.userRef(c.UserID)}, nil
}

func (s fakeComments) ListByDefect(_ context.Context, defectID int64) ([]domain.CommentView, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []domain.CommentView
	for _, c := range s.w.comments {
		if c.DefectID == defectID {
			out = append(out, domain.CommentView{Comment: c, Author: s.w.userRef(c.UserID)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type fakeAttachments struct{ w *world }

func (s fakeAttachments) Create(_ context.Context, a domain.Attachment) (*domain.Attachment, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	a.ID = s.w.nextID()
	a.CreatedAt = s.w.now
	s.w.attachments[a.ID] = a
	return &a, nil
}

func (s fakeAttachments) FindView(_ context.Context, id int64) (*domain.AttachmentView, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	a, ok := s.w.attachments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.AttachmentView{Attachment: a, Uploader: s.w.userRef(a.UploadedBy)}, nil
}

func (s fakeAttachments) ListByDefect(_ context.Context, defectID int64) ([]domain.AttachmentView, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []domain.AttachmentView
	for _, a := range s.w.attachments {
		if a.DefectID == defectID {
			out = append(out, domain.AttachmentView{Attachment: a, Uploader: s.w.userRef(a.UploadedBy)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s fakeAttachments) Delete(_ context.Context, id int64) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if _, ok := s.w.attachments[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.w.attachments, id)
	return nil
}

func (s fakeAttachments) StoragePathsByDefect(_ context.Context, defectID int64) ([]string, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []string
	for _, a := range s.w.attachments {
		if a.DefectID == defectID {
			out = append(out, a.StoragePath)
		}
	}
	return out, nil
}

func (s fakeAttachments) StoragePathsByProject(_ context.Context, projectID int64) ([]string, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var out []string
	for _, a := range s.w.attachments {
		if d, ok := s.w.defects[a.DefectID]; ok && d.ProjectID == projectID {
			out = append(out, a.StoragePath)
		}
	}
	return out, nil
}

type fakeHistory struct{ w *world }

func (s fakeHistory) Append(_ context.Context, e domain.ChangeEntry) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	e.ID = s.w.nextID()
	e.CreatedAt = s.w.now
	s.w.history = append(s.w.history, e)
	return nil
}

func (s fakeHistory) ListByDefect(_ context.Context, defectID int64, opts domain.ListOptions) ([]domain.ChangeEntryView, int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	var all []domain.ChangeEntryView
	for i := len(s.w.history) - 1; i >= 0; i-- {
		e := s.w.history[i]
		if e.DefectID == defectID {
			all = append(all, domain.ChangeEntryView{ChangeEntry: e, User: s.w.userRef(e.UserID)})
		}
	}
	total := int64(len(all))
	start := min(opts.Offset(), len(all))
	end := min(start+opts.Normalize().Limit, len(all))
	return all[start:end], total, nil
}

func (s fakeHistory) FindView(_ context.Context, id int64) (*domain.ChangeEntryView, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	for _, e := range s.w.history {
		if e.ID == id {
			return &domain.ChangeEntryView{ChangeEntry: e, User: s.w.userRef(e.UserID)}, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeReports struct {
	lastPeriod domain.TrendPeriod
	lastSince  time.Time
	rows       []domain.ExportRow
}

func (r *fakeReports) DefectStats(_ context.Context, _ domain.ReportFilter, _ time.Time) (*domain.DefectStats, error) {
	return &domain.DefectStats{}, nil
}

func (r *fakeReports) Trends(_ context.Context, _ *int64, period domain.TrendPeriod, since time.Time) (*domain.Trends, error) {
	r.lastPeriod, r.lastSince = period, since
	return &domain.Trends{Created: []domain.TrendPoint{}, Resolved: []domain.TrendPoint{}}, nil
}

func (r *fakeReports) TeamPerformance(_ context.Context, _ domain.ReportFilter) ([]domain.MemberPerformance, error) {
	return nil, nil
}

func (r *fakeReports) ExportRows(_ context.Context, _ domain.ReportFilter) ([]domain.ExportRow, error) {
	return r.rows, nil
}

func (r *fakeReports) ProjectStats(_ context.Context, _ int64) (*domain.ProjectStats, error) {
	return &domain.ProjectStats{}, nil
}
