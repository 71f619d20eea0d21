// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mmeshcher/credpulse-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующей почтой.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrMissionNotFound возвращается, если миссия не найдена или неактивна.
	ErrMissionNotFound = errors.New("mission not found")
	// ErrUserMissionNotFound возвращается, если запись о прохождении миссии не найдена.
	ErrUserMissionNotFound = errors.New("user mission not found")
	// ErrMissionAlreadyApproved возвращается при повторном одобрении уже завершённой миссии.
	ErrMissionAlreadyApproved = errors.New("mission already approved")
	// ErrInsufficientBalance возвращается при попытке вывода суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrPayoutNotFound возвращается, если заявка на вывод не найдена.
	ErrPayoutNotFound = errors.New("payout request not found")
	// ErrPayoutStatusConflict возвращается, если статус заявки изменился конкурентно
	// и запрошенный переход больше недопустим.
	ErrPayoutStatusConflict = errors.New("payout request status conflict")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя вместе с пустым профилем.
func (r *PostgresRepository) CreateUser(ctx context.Context, email string, passwordHash []byte, role model.Role) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, role) VALUES ($1, $2, $3) RETURNING id`,
		email, passwordHash, string(role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO profiles (user_id, balance) VALUES ($1, 0)`,
		id,
	); err != nil {
		return 0, fmt.Errorf("create profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetUserByEmail возвращает пользователя по адресу почты.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, role, created_at FROM users WHERE email = $1`,
		email,
	)

	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)

	return &u, nil
}

// GetProfile возвращает профиль пользователя с балансом и PayPal-почтой.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID int64) (*model.Profile, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, balance, paypal_email FROM profiles WHERE user_id = $1`,
		userID,
	)

	var p model.Profile
	if err := row.Scan(&p.UserID, &p.Balance, &p.PayPalEmail); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return &p, nil
}

// GetBalance возвращает текущий баланс и сумму всех запрошенных выводов в кредах.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (int64, int64, error) {
	var current int64
	err := r.pool.QueryRow(ctx,
		`SELECT balance FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrUserNotFound
		}
		return 0, 0, fmt.Errorf("select balance: %w", err)
	}

	var withdrawn int64
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(creds), 0) FROM payout_requests WHERE user_id = $1`,
		userID,
	).Scan(&withdrawn)
	if err != nil {
		return 0, 0, fmt.Errorf("sum payouts: %w", err)
	}

	return current, withdrawn, nil
}

// CreateMission добавляет новую миссию в каталог.
func (r *PostgresRepository) CreateMission(ctx context.Context, m model.Mission) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO missions (title, description, category, reward, partner_name, partner_logo_url, call_to_action_url, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		m.Title, m.Description, m.Category, m.Reward, m.PartnerName, m.PartnerLogoURL, m.CallToActionURL, m.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert mission: %w", err)
	}
	return id, nil
}

// SetMissionActive включает или отключает миссию в каталоге.
func (r *PostgresRepository) SetMissionActive(ctx context.Context, missionID int64, active bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE missions SET is_active = $2 WHERE id = $1`,
		missionID, active,
	)
	if err != nil {
		return fmt.Errorf("update mission: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrMissionNotFound
	}
	return nil
}

// ListActiveMissions возвращает активные миссии каталога.
func (r *PostgresRepository) ListActiveMissions(ctx context.Context) ([]model.Mission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, category, reward, partner_name, partner_logo_url, call_to_action_url, is_active, created_at
		 FROM missions
		 WHERE is_active
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select missions: %w", err)
	}
	defer rows.Close()

	var res []model.Mission
	for rows.Next() {
		var m model.Mission
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.Category, &m.Reward,
			&m.PartnerName, &m.PartnerLogoURL, &m.CallToActionURL, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mission: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// StartMission записывает начало миссии пользователем и возвращает признак того,
// что миссия уже была начата ранее. Повторный старт не создаёт дубликата.
func (r *PostgresRepository) StartMission(ctx context.Context, userID, missionID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM missions WHERE id = $1 AND is_active)`,
		missionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check mission: %w", err)
	}
	if !exists {
		return false, ErrMissionNotFound
	}

	cmdTag, err := r.pool.Exec(ctx,
		`INSERT INTO user_missions (user_id, mission_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, mission_id) DO NOTHING`,
		userID, missionID, string(model.UserMissionStarted),
	)
	if err != nil {
		return false, fmt.Errorf("insert user mission: %w", err)
	}

	return cmdTag.RowsAffected() == 0, nil
}

// ListUserMissions возвращает миссии пользователя с их статусами.
func (r *PostgresRepository) ListUserMissions(ctx context.Context, userID int64) ([]model.UserMission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, mission_id, status, started_at
		 FROM user_missions
		 WHERE user_id = $1
		 ORDER BY started_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select user missions: %w", err)
	}
	defer rows.Close()

	var res []model.UserMission
	for rows.Next() {
		var um model.UserMission
		var status string
		if err := rows.Scan(&um.ID, &um.UserID, &um.MissionID, &status, &um.StartedAt); err != nil {
			return nil, fmt.Errorf("scan user mission: %w", err)
		}
		um.Status = model.UserMissionStatus(status)
		res = append(res, um)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MissionForReview описывает начатую миссию, ожидающую проверки администратором.
type MissionForReview struct {
	UserMissionID int64
	UserEmail     string
	MissionTitle  string
	Reward        int64
	StartedAt     time.Time
}

// ListMissionsForReview возвращает начатые миссии в порядке их старта.
func (r *PostgresRepository) ListMissionsForReview(ctx context.Context) ([]MissionForReview, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT um.id, u.email, m.title, m.reward, um.started_at
		 FROM user_missions um
		 JOIN users u ON u.id = um.user_id
		 JOIN missions m ON m.id = um.mission_id
		 WHERE um.status = $1
		 ORDER BY um.started_at`,
		string(model.UserMissionStarted),
	)
	if err != nil {
		return nil, fmt.Errorf("select missions for review: %w", err)
	}
	defer rows.Close()

	var res []MissionForReview
	for rows.Next() {
		var item MissionForReview
		if err := rows.Scan(&item.UserMissionID, &item.UserEmail, &item.MissionTitle, &item.Reward, &item.StartedAt); err != nil {
			return nil, fmt.Errorf("scan mission for review: %w", err)
		}
		res = append(res, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ApproveMission завершает миссию пользователя и начисляет вознаграждение на баланс.
// Начисление и смена статуса выполняются в одной транзакции; повторное одобрение
// возвращает ErrMissionAlreadyApproved и не начисляет вознаграждение второй раз.
func (r *PostgresRepository) ApproveMission(ctx context.Context, userMissionID int64) (int64, error) {
	var reward int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var userID, missionID int64
		var status string
		err = tx.QueryRow(ctx,
			`SELECT user_id, mission_id, status FROM user_missions WHERE id = $1 FOR UPDATE`,
			userMissionID,
		).Scan(&userID, &missionID, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserMissionNotFound
			}
			return fmt.Errorf("lock user mission: %w", err)
		}

		if model.UserMissionStatus(status) == model.UserMissionCompleted {
			return ErrMissionAlreadyApproved
		}

		var title string
		err = tx.QueryRow(ctx,
			`SELECT reward, title FROM missions WHERE id = $1`,
			missionID,
		).Scan(&reward, &title)
		if err != nil {
			return fmt.Errorf("select mission reward: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE user_missions SET status = $2 WHERE id = $1`,
			userMissionID, string(model.UserMissionCompleted),
		); err != nil {
			return fmt.Errorf("complete user mission: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE profiles SET balance = balance + $2 WHERE user_id = $1`,
			userID, reward,
		); err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO transactions (user_id, amount, type, description) VALUES ($1, $2, $3, $4)`,
			userID, reward, string(model.TransactionReward), "Mission reward: "+title,
		); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	return reward, nil
}

// CreatePayoutRequest атомарно создаёт заявку на вывод и списывает креды с баланса.
// Строка профиля блокируется для сериализации конкурентных списаний; частичное
// применение (заявка без списания или наоборот) невозможно.
func (r *PostgresRepository) CreatePayoutRequest(ctx context.Context, userID, creds int64, paypalEmail string) (int64, error) {
	var requestID int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var balance int64
		err = tx.QueryRow(ctx,
			`SELECT balance FROM profiles WHERE user_id = $1 FOR UPDATE`,
			userID,
		).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock profile: %w", err)
		}

		if creds > balance {
			return ErrInsufficientBalance
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO payout_requests (user_id, creds, usd_cents, paypal_email, status)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			userID, creds, model.CredsToUSDCents(creds), paypalEmail, string(model.PayoutStatusPending),
		).Scan(&requestID)
		if err != nil {
			return fmt.Errorf("insert payout request: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE profiles SET balance = balance - $2, paypal_email = $3 WHERE user_id = $1`,
			userID, creds, paypalEmail,
		); err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO transactions (user_id, amount, type, description) VALUES ($1, $2, $3, $4)`,
			userID, -creds, string(model.TransactionPayout),
			fmt.Sprintf("Payout request #%d via PayPal", requestID),
		); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	return requestID, nil
}

func scanPayoutRows(rows pgx.Rows) ([]model.PayoutRequest, error) {
	defer rows.Close()

	var res []model.PayoutRequest
	for rows.Next() {
		var p model.PayoutRequest
		var status string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Creds, &p.USDCents, &p.PayPalEmail,
			&status, &p.RequestedAt, &p.ProcessedAt, &p.TransactionID); err != nil {
			return nil, fmt.Errorf("scan payout request: %w", err)
		}
		p.Status = model.PayoutStatus(status)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListPayoutsByUser возвращает историю заявок пользователя, новые первыми.
func (r *PostgresRepository) ListPayoutsByUser(ctx context.Context, userID int64) ([]model.PayoutRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, creds, usd_cents, paypal_email, status, requested_at, processed_at, transaction_id
		 FROM payout_requests
		 WHERE user_id = $1
		 ORDER BY requested_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payouts: %w", err)
	}

	return scanPayoutRows(rows)
}

// ListPayoutsByStatus возвращает заявки в указанном статусе, старые первыми.
func (r *PostgresRepository) ListPayoutsByStatus(ctx context.Context, status model.PayoutStatus, limit int) ([]model.PayoutRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, creds, usd_cents, paypal_email, status, requested_at, processed_at, transaction_id
		 FROM payout_requests
		 WHERE status = $1
		 ORDER BY requested_at
		 LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select payouts by status: %w", err)
	}

	return scanPayoutRows(rows)
}

// ListStalePayouts возвращает заявки, зависшие в статусе processing дольше указанного
// срока. Срок отсчитывается от момента захвата заявки джобом (processed_at), а не от
// времени запроса пользователя. Такие заявки требуют ручной сверки с провайдером.
func (r *PostgresRepository) ListStalePayouts(ctx context.Context, olderThan time.Duration) ([]model.PayoutRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, creds, usd_cents, paypal_email, status, requested_at, processed_at, transaction_id
		 FROM payout_requests
		 WHERE status = $1 AND processed_at < now() - $2::interval
		 ORDER BY processed_at`,
		string(model.PayoutStatusProcessing), fmt.Sprintf("%d seconds", int(olderThan.Seconds())),
	)
	if err != nil {
		return nil, fmt.Errorf("select stale payouts: %w", err)
	}

	return scanPayoutRows(rows)
}

// updatePayoutStatus выполняет условную смену статуса заявки: обновление проходит,
// только если заявка всё ещё находится в статусе from. Переход сверяется с графом
// допустимых переходов до обращения к БД.
func (r *PostgresRepository) updatePayoutStatus(ctx context.Context, id int64, from, to model.PayoutStatus, transactionID *string, markProcessed bool) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("payout status transition %s -> %s is not allowed", from, to)
	}

	var cmdTag pgconn.CommandTag
	var err error

	switch {
	case transactionID != nil && markProcessed:
		cmdTag, err = r.pool.Exec(ctx,
			`UPDATE payout_requests SET status = $3, transaction_id = $4, processed_at = now()
			 WHERE id = $1 AND status = $2`,
			id, string(from), string(to), *transactionID,
		)
	case transactionID != nil:
		cmdTag, err = r.pool.Exec(ctx,
			`UPDATE payout_requests SET status = $3, transaction_id = $4
			 WHERE id = $1 AND status = $2`,
			id, string(from), string(to), *transactionID,
		)
	case markProcessed:
		cmdTag, err = r.pool.Exec(ctx,
			`UPDATE payout_requests SET status = $3, processed_at = now()
			 WHERE id = $1 AND status = $2`,
			id, string(from), string(to),
		)
	default:
		cmdTag, err = r.pool.Exec(ctx,
			`UPDATE payout_requests SET status = $3
			 WHERE id = $1 AND status = $2`,
			id, string(from), string(to),
		)
	}
	if err != nil {
		return fmt.Errorf("update payout status: %w", err)
	}

	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payout_requests WHERE id = $1)`,
		id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check payout exists: %w", err)
	}
	if !exists {
		return ErrPayoutNotFound
	}

	return ErrPayoutStatusConflict
}

// ApprovePayout переводит заявку pending -> approved для автоматической выплаты.
func (r *PostgresRepository) ApprovePayout(ctx context.Context, id int64) error {
	return r.updatePayoutStatus(ctx, id, model.PayoutStatusPending, model.PayoutStatusApproved, nil, false)
}

// ClaimPayout переводит заявку approved -> processing перед отправкой провайдеру
// и фиксирует время захвата в processed_at. От этого времени отсчитывается срок
// зависания заявки в ListStalePayouts.
// Проигрыш конкурентной гонки означает, что заявку уже забрал другой запуск джоба.
func (r *PostgresRepository) ClaimPayout(ctx context.Context, id int64) error {
	return r.updatePayoutStatus(ctx, id, model.PayoutStatusApproved, model.PayoutStatusProcessing, nil, true)
}

// CompletePayout фиксирует успешную выплату с идентификатором транзакции провайдера.
func (r *PostgresRepository) CompletePayout(ctx context.Context, id int64, providerTxID string) error {
	return r.updatePayoutStatus(ctx, id, model.PayoutStatusProcessing, model.PayoutStatusCompleted, &providerTxID, true)
}

// FailPayout помечает заявку неуспешной и сохраняет текст ошибки для диагностики.
// Баланс пользователю автоматически не возвращается: исход на стороне провайдера
// может быть неоднозначным, решение принимает администратор.
func (r *PostgresRepository) FailPayout(ctx context.Context, id int64, errText string) error {
	return r.updatePayoutStatus(ctx, id, model.PayoutStatusProcessing, model.PayoutStatusFailed, &errText, true)
}

// MarkPayoutPaidManually завершает заявку, оплаченную вручную вне автоматизации.
// Обновление проходит только если заявка всё ещё pending.
func (r *PostgresRepository) MarkPayoutPaidManually(ctx context.Context, id int64) error {
	marker := model.ManualCompletionMarker
	return r.updatePayoutStatus(ctx, id, model.PayoutStatusPending, model.PayoutStatusCompleted, &marker, true)
}

// RequeuePayout возвращает неуспешную заявку в очередь: failed -> pending.
func (r *PostgresRepository) RequeuePayout(ctx context.Context, id int64) error {
	return r.updatePayoutStatus(ctx, id, model.PayoutStatusFailed, model.PayoutStatusPending, nil, false)
}

// ListTransactionsByUser возвращает журнал операций пользователя, новые первыми.
func (r *PostgresRepository) ListTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, amount, type, description, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var tr model.Transaction
		var trType string
		if err := rows.Scan(&tr.ID, &tr.UserID, &tr.Amount, &trType, &tr.Description, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tr.Type = model.TransactionType(trType)
		res = append(res, tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
