package domain

// OutcomeStatus — итоговый статус обработки task.
//
// Жизненный цикл задачи внутри воркера:
//
//	received → idempotency-checked → executing → SUCCEEDED
//	                                           ↘ retry-wait → executing
//	                                           ↘ FAILED-PERMANENT
//
// В хранилище попадают только терминальные статусы.
type OutcomeStatus string

const (
	// OutcomeSucceeded — уведомление доставлено.
	OutcomeSucceeded OutcomeStatus = "succeeded"

	// OutcomeFailedPermanent — доставка невозможна или retry исчерпаны.
	OutcomeFailedPermanent OutcomeStatus = "failed-permanent"
)

// IsTerminal возвращает true для статусов, которые можно сохранить.
func (s OutcomeStatus) IsTerminal() bool {
	switch s {
	case OutcomeSucceeded, OutcomeFailedPermanent:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление OutcomeStatus.
func (s OutcomeStatus) String() string {
	return string(s)
}

// ParseOutcomeStatus парсит строку в OutcomeStatus.
// Возвращает false для неизвестных значений.
func ParseOutcomeStatus(s string) (OutcomeStatus, bool) {
	switch s {
	case "succeeded":
		return OutcomeSucceeded, true
	case "failed-permanent":
		return OutcomeFailedPermanent, true
	default:
		return "", false
	}
}
