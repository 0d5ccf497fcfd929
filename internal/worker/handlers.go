package worker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shaiso/courier/internal/codec"
	"github.com/shaiso/courier/internal/domain"
)

// Notification — что и кому отправить.
type Notification struct {
	Recipient string
	Content   string
}

// Handler превращает задачу своего kind в Notification.
//
// Ошибка Prepare означает, что задачу невозможно выполнить
// ни при каком повторе: она сразу становится failed-permanent.
type Handler interface {
	Prepare(task *domain.Task) (Notification, error)
}

// HandlerFunc — адаптер функции к Handler.
type HandlerFunc func(task *domain.Task) (Notification, error)

// Prepare вызывает f(task).
func (f HandlerFunc) Prepare(task *domain.Task) (Notification, error) {
	return f(task)
}

// Registry — реестр обработчиков по kind.
type Registry struct {
	handlers map[domain.TaskKind]Handler
}

// NewRegistry создаёт реестр с обработчиками send-notification и send-welcome.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[domain.TaskKind]Handler)}
	r.Register(domain.TaskKindSendNotification, HandlerFunc(prepareNotification))
	r.Register(domain.TaskKindSendWelcome, HandlerFunc(prepareWelcome))
	return r
}

// Register добавляет обработчик для kind.
func (r *Registry) Register(kind domain.TaskKind, h Handler) {
	r.handlers[kind] = h
}

// Get возвращает обработчик для kind.
func (r *Registry) Get(kind domain.TaskKind) (Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return h, nil
}

var validate = validator.New()

func prepareNotification(task *domain.Task) (Notification, error) {
	p, err := codec.ParsePayload[domain.NotificationPayload](task)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return Notification{Recipient: p.Recipient, Content: p.Content}, nil
}

func prepareWelcome(task *domain.Task) (Notification, error) {
	p, err := codec.ParsePayload[domain.WelcomePayload](task)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	text, err := renderWelcome(p)
	if err != nil {
		return Notification{}, err
	}
	return Notification{Recipient: welcomeRecipient(p.TelegramUsername), Content: text}, nil
}

// welcomeRecipient: числовой chat_id как есть, иначе @username.
func welcomeRecipient(username string) string {
	username = strings.TrimSpace(username)
	if _, err := strconv.ParseInt(username, 10, 64); err == nil {
		return username
	}
	return "@" + strings.TrimPrefix(username, "@")
}
