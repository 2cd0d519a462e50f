package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/storage"
)

func newProjectServices(t *testing.T, w *world) (*ProjectService, *StageService, storage.FileStore) {
	t.Helper()
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	tx := &fakeTx{}
	projects := NewProjectService(tx, fakeProjects{w}, fakeStages{w}, fakeAttachments{w}, &fakeReports{}, files)
	stages := NewStageService(tx, fakeStages{w}, fakeProjects{w})
	return projects, stages, files
}

func TestProjectService_Create(t *testing.T) {
	w := newWorld()
	manager := w.addUser("manager", domain.RoleManager)
	svc, _, _ := newProjectServices(t, w)
	ctx := context.Background()

	p, err := svc.Create(ctx, CreateProjectInput{Name: "  Riverside flats "}, manager.ID)
	require.NoError(t, err)
	assert.Equal(t, "Riverside flats", p.Name)
	assert.Equal(t, domain.ProjectStatusPlanning, p.Status)
	assert.Equal(t, manager.ID, p.CreatedBy)

	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	_, err = svc.Create(ctx, CreateProjectInput{Name: "Backwards", StartDate: &start, EndDate: &end}, manager.ID)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "end_date", ve.Field)

	_, err = svc.Create(ctx, CreateProjectInput{Name: "ab"}, manager.ID)
	assert.ErrorAs(t, err, &ve)
}

func TestProjectService_GetListsStagesInOrder(t *testing.T) {
	w := newWorld()
	manager := w.addUser("manager", domain.RoleManager)
	p := w.addProject("Depot", manager.ID)
	svc, stages, _ := newProjectServices(t, w)
	ctx := context.Background()

	for i, name := range []string{"Fit-out", "Groundworks", "Frame"} {
		_, err := stages.Create(ctx, CreateStageInput{ProjectID: p.ID, Name: name, Order: []int{3, 1, 2}[i]})
		require.NoError(t, err)
	}

	detail, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Creator)
	assert.Equal(t, "manager", detail.Creator.Username)
	require.Len(t, detail.Stages, 3)
	assert.Equal(t, "Groundworks", detail.Stages[0].Name)
	assert.Equal(t, "Frame", detail.Stages[1].Name)
	assert.Equal(t, "Fit-out", detail.Stages[2].Name)
}

func TestProjectService_Update(t *testing.T) {
	w := newWorld()
	manager := w.addUser("manager", domain.RoleManager)
	p := w.addProject("Depot", manager.ID)
	svc, _, _ := newProjectServices(t, w)
	ctx := context.Background()

	got, err := svc.Update(ctx, p.ID, ProjectPatch{
		Status:      domain.Some(domain.ProjectStatusPaused),
		Description: domain.Some("   "),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusPaused, got.Status)
	assert.Nil(t, got.Description)
	assert.Equal(t, "Depot", got.Name)

	_, err = svc.Update(ctx, p.ID, ProjectPatch{Name: domain.Null[string]()})
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = svc.Update(ctx, 404, ProjectPatch{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProjectService_DeleteCascades(t *testing.T) {
	w := newWorld()
	manager := w.addUser("manager", domain.RoleManager)
	p := w.addProject("Depot", manager.ID)
	keep := w.addProject("Other", manager.ID)
	stage := w.addStage(p.ID, "Frame")
	w.addStage(keep.ID, "Roof")
	svc, _, files := newProjectServices(t, w)
	ctx := context.Background()

	w.defects[50] = domain.Defect{ID: 50, ProjectID: p.ID, StageID: &stage.ID, Status: domain.DefectStatusNew}
	w.defects[51] = domain.Defect{ID: 51, ProjectID: keep.ID, Status: domain.DefectStatusNew}
	w.attachments[60] = domain.Attachment{ID: 60, DefectID: 50, StoragePath: "defects/50/x.png"}
	_, err := files.Save(ctx, "defects/50/x.png", strings.NewReader("png"), 3)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, p.ID, manager.ID))

	for _, st := range w.stages {
		assert.NotEqual(t, p.ID, st.ProjectID)
	}
	for _, d := range w.defects {
		assert.NotEqual(t, p.ID, d.ProjectID)
	}
	assert.Contains(t, w.defects, int64(51))
	assert.Empty(t, w.attachments)
	exists, err := files.Exists(ctx, "defects/50/x.png")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, svc.Delete(ctx, p.ID, manager.ID), domain.ErrNotFound)
}

func TestStageService_DeleteReferencedStage(t *testing.T) {
	w := newWorld()
	manager := w.addUser("manager", domain.RoleManager)
	p := w.addProject("Depot", manager.ID)
	stage := w.addStage(p.ID, "Frame")
	free := w.addStage(p.ID, "Roof")
	_, stages, _ := newProjectServices(t, w)
	ctx := context.Background()

	w.defects[50] = domain.Defect{ID: 50, ProjectID: p.ID, StageID: &stage.ID}

	err := stages.Delete(ctx, stage.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, w.stages, stage.ID)

	require.NoError(t, stages.Delete(ctx, free.ID))
	assert.NotContains(t, w.stages, free.ID)

	assert.ErrorIs(t, stages.Delete(ctx, free.ID), domain.ErrNotFound)
}

func TestStageService_CreateAndUpdate(t *testing.T) {
	w := newWorld()
	manager := w.addUser("manager", domain.RoleManager)
	p := w.addProject("Depot", manager.ID)
	_, stages, _ := newProjectServices(t, w)
	ctx := context.Background()

	_, err := stages.Create(ctx, CreateStageInput{ProjectID: 404, Name: "Frame"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	st, err := stages.Create(ctx, CreateStageInput{ProjectID: p.ID, Name: "Frame"})
	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusPending, st.Status)

	got, err := stages.Update(ctx, st.ID, StagePatch{
		Status: domain.Some(domain.StageStatusInProgress),
		Order:  domain.Some(4),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StageStatusInProgress, got.Status)
	assert.Equal(t, 4, got.Order)

	_, err = stages.Update(ctx, st.ID, StagePatch{Order: domain.Some(-1)})
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)

	detail, err := stages.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "Depot", detail.Project.Name)
}
