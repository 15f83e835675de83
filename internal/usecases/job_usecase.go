package usecases

import (
	"context"
	"errors"

	"github.com/iwtcode/cncService/internal/domain/models"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

// UploadJob принимает программу списком строк или цельным текстом.
func (u *Usecase) UploadJob(connectionID string, req models.UploadJobRequest) (*models.Job, error) {
	if len(req.Lines) > 0 && req.GCode != "" {
		return nil, apperrors.NewAppError(apperrors.BadRequestErrorCode, apperrors.BadRequest,
			errors.New("укажите либо lines, либо gcode"), true)
	}
	lines := req.Lines
	if req.GCode != "" {
		lines = []string{req.GCode}
	}
	return u.machineSvc.SubmitJob(connectionID, lines)
}

func (u *Usecase) StartJob(ctx context.Context, jobID string) (*models.Job, error) {
	return u.machineSvc.StartJob(ctx, jobID)
}

func (u *Usecase) PauseJob(ctx context.Context, jobID string) (*models.Job, error) {
	return u.machineSvc.PauseJob(ctx, jobID)
}

func (u *Usecase) ResumeJob(ctx context.Context, jobID string) (*models.Job, error) {
	return u.machineSvc.ResumeJob(ctx, jobID)
}

func (u *Usecase) CancelJob(ctx context.Context, jobID string) (*models.Job, error) {
	return u.machineSvc.CancelJob(ctx, jobID)
}

func (u *Usecase) GetJob(jobID string) (*models.Job, error) {
	return u.machineSvc.GetJob(jobID)
}

func (u *Usecase) ListJobs(connectionID string) ([]*models.Job, error) {
	if _, err := u.machineSvc.GetConnection(connectionID); err != nil {
		return nil, err
	}
	return u.machineSvc.ListJobs(connectionID)
}
