// Package codec преобразует тело AMQP-сообщения в domain.Task и обратно.
//
// Поддерживаемые форматы:
//   - JSON-конверт {"v":1,"id":...,"kind":...,"payload":{...},"enqueued_at":...}
//   - legacy-строка "<user_id>,<telegram_username>" от старого продюсера,
//     превращается в задачу send-welcome
//
// Decode — единственная защита от poison-сообщений: любая ошибка
// декодирования означает nack без requeue.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shaiso/courier/internal/domain"
)

// CurrentVersion — версия конверта, которую пишет Encode.
const CurrentVersion = 1

// legacyIDPrefix — префикс ID для legacy-сообщений без MessageId.
// Одно приветствие на пользователя.
const legacyIDPrefix = "welcome:"

// Meta — метаданные AMQP-сообщения, нужные декодеру.
type Meta struct {
	MessageID   string
	Timestamp   time.Time
	Redelivered bool
}

// envelope — формат сообщения в очереди (контракт продюсера).
type envelope struct {
	Version    int             `json:"v" validate:"gte=0"`
	ID         string          `json:"id" validate:"required,max=255"`
	Kind       string          `json:"kind" validate:"required,max=64"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at" validate:"required"`
}

// Decoder декодирует сообщения очереди.
// Безопасен для конкурентного использования.
type Decoder struct {
	validate *validator.Validate
}

// NewDecoder создаёт Decoder.
func NewDecoder() *Decoder {
	v := validator.New()
	// В ошибках используем имена полей из JSON-контракта.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Decoder{validate: v}
}

// Decode разбирает тело сообщения.
//
// Неизвестный kind НЕ является ошибкой декодирования: конверт валиден,
// решение о kind принимает обработчик.
func (d *Decoder) Decode(body []byte, meta Meta) (*domain.Task, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, newDecodeError("", "empty body", nil)
	}

	var (
		task *domain.Task
		err  error
	)
	if trimmed[0] == '{' {
		task, err = d.decodeEnvelope(trimmed)
	} else {
		task, err = decodeLegacy(trimmed, meta)
	}
	if err != nil {
		return nil, err
	}

	task.Redelivered = meta.Redelivered
	return task, nil
}

func (d *Decoder) decodeEnvelope(body []byte) (*domain.Task, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, newDecodeError("", "invalid json", err)
	}

	if env.Version == 0 {
		env.Version = CurrentVersion
	}
	if env.Version != CurrentVersion {
		return nil, newDecodeError("v", fmt.Sprintf("version %d", env.Version), ErrUnsupportedVersion)
	}

	if err := d.validate.Struct(env); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0]
			return nil, newDecodeError(field.Field(), "failed "+field.Tag(), err)
		}
		return nil, newDecodeError("", "validation failed", err)
	}

	payload := env.Payload
	if isNullJSON(payload) {
		payload = nil
	}

	return &domain.Task{
		ID:         env.ID,
		Kind:       domain.TaskKind(env.Kind),
		Payload:    payload,
		EnqueuedAt: env.EnqueuedAt.UTC(),
	}, nil
}

// decodeLegacy разбирает формат "<user_id>,<telegram_username>".
func decodeLegacy(body []byte, meta Meta) (*domain.Task, error) {
	parts := strings.Split(string(body), ",")
	if len(parts) != 2 {
		return nil, newDecodeError("", "legacy body must be \"<user_id>,<username>\"", nil)
	}

	userID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || userID <= 0 {
		return nil, newDecodeError("user_id", "not a positive integer", err)
	}

	username := strings.TrimSpace(parts[1])
	if username == "" {
		return nil, newDecodeError("telegram_username", "empty", nil)
	}

	payload, err := json.Marshal(domain.WelcomePayload{
		UserID:           userID,
		TelegramUsername: username,
	})
	if err != nil {
		return nil, newDecodeError("payload", "marshal", err)
	}

	id := meta.MessageID
	if id == "" {
		id = legacyIDPrefix + strconv.FormatInt(userID, 10)
	}

	enqueuedAt := meta.Timestamp
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now()
	}

	return &domain.Task{
		ID:         id,
		Kind:       domain.TaskKindSendWelcome,
		Payload:    payload,
		EnqueuedAt: enqueuedAt.UTC(),
	}, nil
}

// Encode сериализует задачу в JSON-конверт текущей версии.
func Encode(task *domain.Task) ([]byte, error) {
	env := envelope{
		Version:    CurrentVersion,
		ID:         task.ID,
		Kind:       string(task.Kind),
		Payload:    task.Payload,
		EnqueuedAt: task.EnqueuedAt,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return body, nil
}

// ParsePayload разбирает payload задачи в указанный тип.
func ParsePayload[T any](task *domain.Task) (T, error) {
	var result T
	if len(task.Payload) == 0 {
		return result, fmt.Errorf("payload is empty")
	}
	if err := json.Unmarshal(task.Payload, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}

func isNullJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
