// Package model содержит доменные сущности платформы вознаграждений.
package model

import (
	"fmt"
	"time"
)

// Role определяет роль пользователя в системе.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User представляет зарегистрированного пользователя платформы.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
}

// Profile содержит баланс пользователя в кредах и сохранённую PayPal-почту.
// Баланс изменяется только доверенными серверными операциями.
type Profile struct {
	UserID      int64
	Balance     int64
	PayPalEmail string
}

// Mission описывает запись каталога миссий с фиксированным вознаграждением.
type Mission struct {
	ID              int64
	Title           string
	Description     string
	Category        string
	Reward          int64
	PartnerName     string
	PartnerLogoURL  string
	CallToActionURL string
	IsActive        bool
	CreatedAt       time.Time
}

// UserMissionStatus описывает статус прохождения миссии пользователем.
type UserMissionStatus string

const (
	UserMissionStarted   UserMissionStatus = "started"
	UserMissionCompleted UserMissionStatus = "completed"
)

// UserMission связывает пользователя с начатой миссией.
// На пару (пользователь, миссия) существует не более одной записи.
type UserMission struct {
	ID        int64
	UserID    int64
	MissionID int64
	Status    UserMissionStatus
	StartedAt time.Time
}

// PayoutStatus описывает статус заявки на вывод средств.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusApproved   PayoutStatus = "approved"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// payoutTransitions задаёт замкнутый граф допустимых переходов статуса заявки.
// Переход failed -> pending выполняется только явным действием администратора.
var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:    {PayoutStatusApproved, PayoutStatusCompleted},
	PayoutStatusApproved:   {PayoutStatusProcessing},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
	PayoutStatusFailed:     {PayoutStatusPending},
}

// CanTransition сообщает, допустим ли переход статуса заявки из from в to.
func CanTransition(from, to PayoutStatus) bool {
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ManualCompletionMarker записывается в поле транзакции при ручной выплате.
const ManualCompletionMarker = "MANUAL_PAYPAL_COMPLETION"

// PayoutRequest описывает заявку пользователя на вывод кредов через PayPal.
// Записи никогда не удаляются и образуют журнал аудита.
type PayoutRequest struct {
	ID            int64
	UserID        int64
	Creds         int64
	USDCents      int64
	PayPalEmail   string
	Status        PayoutStatus
	RequestedAt   time.Time
	ProcessedAt   *time.Time
	TransactionID *string
}

// TransactionType описывает тип записи в журнале операций по балансу.
type TransactionType string

const (
	TransactionReward TransactionType = "reward"
	TransactionPayout TransactionType = "payout"
)

// Transaction представляет неизменяемую строку журнала операций.
// Сумма указана в кредах со знаком: начисления положительные, списания отрицательные.
type Transaction struct {
	ID          int64
	UserID      int64
	Amount      int64
	Type        TransactionType
	Description string
	CreatedAt   time.Time
}

// CredsToUSDCents переводит креды в центы USD по курсу 1000 кредов = $1.
func CredsToUSDCents(creds int64) int64 {
	return creds / 10
}

// FormatUSD форматирует сумму в центах как строку с двумя знаками после запятой.
func FormatUSD(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// Balance содержит баланс пользователя и сумму всех выведенных средств в кредах.
type Balance struct {
	Current   int64 `json:"current"`
	Withdrawn int64 `json:"withdrawn"`
}
