package domain

// NotificationPayload — payload для TaskKindSendNotification.
type NotificationPayload struct {
	// Recipient — chat_id (число) или @username в Telegram.
	Recipient string `json:"recipient" validate:"required"`

	// Content — текст сообщения.
	Content string `json:"content" validate:"required,max=4096"`
}

// WelcomePayload — payload для TaskKindSendWelcome.
//
// Продюсер публикует его после регистрации пользователя.
type WelcomePayload struct {
	UserID           int64  `json:"user_id" validate:"required"`
	TelegramUsername string `json:"telegram_username" validate:"required"`

	// Name — отображаемое имя (опционально, иначе используется username).
	Name string `json:"name,omitempty"`
}
