package usecases

import "github.com/iwtcode/cncService/internal/domain/models"

func (u *Usecase) EnqueueTask(spec models.TaskSpec) (*models.Task, error) {
	return u.taskSvc.Enqueue(spec)
}

func (u *Usecase) CancelTask(taskID string) (*models.Task, error) {
	return u.taskSvc.Cancel(taskID)
}

func (u *Usecase) GetTask(taskID string) (*models.Task, error) {
	return u.taskSvc.Get(taskID)
}

func (u *Usecase) ListTasks() []*models.Task {
	return u.taskSvc.List()
}
