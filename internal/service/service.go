// Package service реализует бизнес-логику платформы вознаграждений.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/credpulse-system/internal/model"
	"github.com/mmeshcher/credpulse-system/internal/repository"
	"github.com/mmeshcher/credpulse-system/internal/validation"
)

// MinPayoutCreds — минимальная сумма вывода (5000 кредов = $5).
const MinPayoutCreds = 5000

// ErrBelowMinimum возвращается при запросе вывода меньше минимального порога.
var (
	ErrBelowMinimum = fmt.Errorf("payout amount below minimum of %d creds", MinPayoutCreds)
	// ErrInvalidDestination возвращается при пустом или некорректном адресе PayPal.
	ErrInvalidDestination = errors.New("invalid paypal destination email")
	// ErrInvalidCredentials возвращается при неверной паре почта/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, email string, passwordHash []byte, role model.Role) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetProfile(ctx context.Context, userID int64) (*model.Profile, error)
	GetBalance(ctx context.Context, userID int64) (int64, int64, error)
	CreateMission(ctx context.Context, m model.Mission) (int64, error)
	SetMissionActive(ctx context.Context, missionID int64, active bool) error
	ListActiveMissions(ctx context.Context) ([]model.Mission, error)
	StartMission(ctx context.Context, userID, missionID int64) (bool, error)
	ListUserMissions(ctx context.Context, userID int64) ([]model.UserMission, error)
	ListMissionsForReview(ctx context.Context) ([]repository.MissionForReview, error)
	ApproveMission(ctx context.Context, userMissionID int64) (int64, error)
	CreatePayoutRequest(ctx context.Context, userID, creds int64, paypalEmail string) (int64, error)
	ListPayoutsByUser(ctx context.Context, userID int64) ([]model.PayoutRequest, error)
	ListPayoutsByStatus(ctx context.Context, status model.PayoutStatus, limit int) ([]model.PayoutRequest, error)
	ListStalePayouts(ctx context.Context, olderThan time.Duration) ([]model.PayoutRequest, error)
	ApprovePayout(ctx context.Context, id int64) error
	MarkPayoutPaidManually(ctx context.Context, id int64) error
	RequeuePayout(ctx context.Context, id int64) error
	ListTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error)
}

// Service содержит бизнес-логику платформы вознаграждений.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя с ролью user.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (int64, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.CreateUser(ctx, email, hashed, model.RoleUser)
}

// AuthenticateUser проверяет почту и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetProfile возвращает профиль пользователя.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// GetBalance возвращает баланс пользователя и сумму всех запрошенных выводов.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	current, withdrawn, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.Balance{
		Current:   current,
		Withdrawn: withdrawn,
	}, nil
}

// CreateMission добавляет миссию в каталог.
func (s *Service) CreateMission(ctx context.Context, m model.Mission) (int64, error) {
	if m.Title == "" {
		return 0, errors.New("mission title must not be empty")
	}
	if m.Reward <= 0 {
		return 0, errors.New("mission reward must be positive")
	}
	return s.repo.CreateMission(ctx, m)
}

// SetMissionActive включает или отключает миссию в каталоге.
func (s *Service) SetMissionActive(ctx context.Context, missionID int64, active bool) error {
	return s.repo.SetMissionActive(ctx, missionID, active)
}

// ListActiveMissions возвращает активные миссии каталога.
func (s *Service) ListActiveMissions(ctx context.Context) ([]model.Mission, error) {
	return s.repo.ListActiveMissions(ctx)
}

// StartMission отмечает начало миссии пользователем. Повторный старт идемпотентен.
func (s *Service) StartMission(ctx context.Context, userID, missionID int64) (bool, error) {
	return s.repo.StartMission(ctx, userID, missionID)
}

// ListUserMissions возвращает миссии пользователя с их статусами.
func (s *Service) ListUserMissions(ctx context.Context, userID int64) ([]model.UserMission, error) {
	return s.repo.ListUserMissions(ctx, userID)
}

// ListMissionsForReview возвращает начатые миссии, ожидающие одобрения администратором.
func (s *Service) ListMissionsForReview(ctx context.Context) ([]repository.MissionForReview, error) {
	return s.repo.ListMissionsForReview(ctx)
}

// ApproveMission завершает миссию и начисляет вознаграждение.
// Повторное одобрение не начисляет вознаграждение второй раз.
func (s *Service) ApproveMission(ctx context.Context, userMissionID int64) (int64, error) {
	return s.repo.ApproveMission(ctx, userMissionID)
}

// RequestPayout создаёт заявку на вывод кредов на указанную PayPal-почту.
// Списание баланса и создание заявки выполняются атомарно на стороне хранилища.
func (s *Service) RequestPayout(ctx context.Context, userID, creds int64, paypalEmail string) (int64, error) {
	if creds < MinPayoutCreds {
		return 0, ErrBelowMinimum
	}
	if !validation.IsValidPayPalEmail(paypalEmail) {
		return 0, ErrInvalidDestination
	}

	return s.repo.CreatePayoutRequest(ctx, userID, creds, paypalEmail)
}

// ListPayoutsByUser возвращает историю заявок пользователя.
func (s *Service) ListPayoutsByUser(ctx context.Context, userID int64) ([]model.PayoutRequest, error) {
	return s.repo.ListPayoutsByUser(ctx, userID)
}

// ListPendingPayouts возвращает заявки, ожидающие решения администратора.
func (s *Service) ListPendingPayouts(ctx context.Context, limit int) ([]model.PayoutRequest, error) {
	return s.repo.ListPayoutsByStatus(ctx, model.PayoutStatusPending, limit)
}

// ListStalePayouts возвращает заявки, зависшие в processing дольше указанного срока.
func (s *Service) ListStalePayouts(ctx context.Context, olderThan time.Duration) ([]model.PayoutRequest, error) {
	return s.repo.ListStalePayouts(ctx, olderThan)
}

// ApprovePayout одобряет заявку для автоматической выплаты: pending -> approved.
// Баланс не меняется: креды были списаны при создании заявки.
func (s *Service) ApprovePayout(ctx context.Context, id int64) error {
	return s.repo.ApprovePayout(ctx, id)
}

// MarkManuallyPaid завершает заявку, оплаченную администратором вручную.
func (s *Service) MarkManuallyPaid(ctx context.Context, id int64) error {
	return s.repo.MarkPayoutPaidManually(ctx, id)
}

// RequeuePayout возвращает неуспешную заявку в очередь по явному решению администратора.
func (s *Service) RequeuePayout(ctx context.Context, id int64) error {
	return s.repo.RequeuePayout(ctx, id)
}

// ListTransactionsByUser возвращает журнал операций пользователя.
func (s *Service) ListTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.repo.ListTransactionsByUser(ctx, userID)
}
