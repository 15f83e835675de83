package usecases

import (
	"fmt"
	"strings"

	"github.com/iwtcode/cncService/internal/domain/models"
	"github.com/iwtcode/cncService/internal/services/eventbus"
	apperrors "github.com/iwtcode/cncService/pkg/errors"
)

func (u *Usecase) OpenStream(clientID string) *eventbus.Client {
	return u.bus.NewClient(clientID, 0)
}

func (u *Usecase) CloseStream(c *eventbus.Client) {
	u.bus.RemoveClient(c)
}

func (u *Usecase) Subscribe(c *eventbus.Client, topics []string) error {
	if err := validTopics(topics, true); err != nil {
		return err
	}
	u.bus.Subscribe(c, topics...)
	return nil
}

func (u *Usecase) Unsubscribe(c *eventbus.Client, topics []string) error {
	if err := validTopics(topics, true); err != nil {
		return err
	}
	u.bus.Unsubscribe(c, topics...)
	return nil
}

// Resync повторяет пропущенные события топика. Вне окна хранения
// возвращает *eventbus.ReplayUnavailableError.
func (u *Usecase) Resync(c *eventbus.Client, topic string, since uint64) error {
	if err := validTopics([]string{topic}, false); err != nil {
		return err
	}
	return u.bus.Resync(c, topic, since)
}

// Snapshot ставит в очередь клиента текущее состояние сущностей топика.
func (u *Usecase) Snapshot(c *eventbus.Client, topic string) (uint64, error) {
	if err := validTopics([]string{topic}, false); err != nil {
		return 0, err
	}

	var take func() *models.TopicSnapshot
	if topic == models.TopicTasks {
		take = func() *models.TopicSnapshot { return &models.TopicSnapshot{Tasks: u.taskSvc.List()} }
	} else {
		connectionID := strings.TrimPrefix(topic, machinePrefix)
		if _, err := u.machineSvc.GetConnection(connectionID); err != nil {
			return 0, err
		}
		take = func() *models.TopicSnapshot { return u.machineSvc.Snapshot(connectionID) }
	}
	return u.bus.Snapshot(c, topic, take), nil
}

var machinePrefix = models.MachineTopic("")

// validTopics принимает "tasks", "machine:<id>" и, если разрешено, "*".
func validTopics(topics []string, allowWildcard bool) error {
	if len(topics) == 0 {
		return apperrors.NewAppError(apperrors.BadRequestErrorCode, "invalid_topic", fmt.Errorf("не указан топик"), true)
	}
	for _, t := range topics {
		switch {
		case t == models.TopicTasks:
		case t == models.TopicAll && allowWildcard:
		case strings.HasPrefix(t, machinePrefix) && len(t) > len(machinePrefix):
		default:
			return apperrors.NewAppError(apperrors.BadRequestErrorCode, "invalid_topic", fmt.Errorf("неизвестный топик '%s'", t), true)
		}
	}
	return nil
}
