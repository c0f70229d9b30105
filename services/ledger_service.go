package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"personalbank/database"
	"personalbank/models"
	"personalbank/utils"
)

// amountScale допустимое число знаков после запятой в суммах
const amountScale = 2

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// OpenAccountRequest представляет данные для открытия счета
type OpenAccountRequest struct {
	Name           string          `json:"name" validate:"required"`
	DOB            string          `json:"dob" validate:"required,datetime=2006-01-02"`
	City           string          `json:"city"`
	Address        string          `json:"address"`
	ContactNumber  string          `json:"contact_number" validate:"required,len=10,digits"`
	Email          string          `json:"email" validate:"required,email"`
	Password       string          `json:"password" validate:"required,maxbytes=72,password"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required,maxbytes=72,password"`
}

type profileRequest struct {
	Name string `json:"name" validate:"required"`
}

// TransferReceipt обе записи перевода с общим идентификатором
type TransferReceipt struct {
	TransferID string             `json:"transfer_id"`
	From       models.Transaction `json:"from"`
	To         models.Transaction `json:"to"`
}

// LedgerOptions параметры движка операций
type LedgerOptions struct {
	MinOpeningBalance     decimal.Decimal
	AccountNumberAttempts int
}

// LedgerService проводит операции по счетам. Каждая операция, меняющая баланс,
// выполняется в одной транзакции хранилища вместе с записью в журнал.
type LedgerService struct {
	store             database.Store
	validator         *validator.Validate
	notifier          Notifier
	logger            *zap.Logger
	minOpeningBalance decimal.Decimal
	numberAttempts    int
	generateNumber    func() (string, error)
}

// NewLedgerService создает новый экземпляр LedgerService
func NewLedgerService(store database.Store, notifier Notifier, logger *zap.Logger, opts LedgerOptions) *LedgerService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if opts.AccountNumberAttempts <= 0 {
		opts.AccountNumberAttempts = 1
	}

	return &LedgerService{
		store:             store,
		validator:         newValidator(),
		notifier:          notifier,
		logger:            logger,
		minOpeningBalance: opts.MinOpeningBalance,
		numberAttempts:    opts.AccountNumberAttempts,
		generateNumber:    utils.GenerateAccountNumber,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return validPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		return onlyDigits(fl.Field().String())
	})
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})
	// встроенное правило email шире принятого в банке формата
	_ = v.RegisterValidation("email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return v
}

// validPassword: не короче 8 символов, хотя бы одна буква и одна цифра
func validPassword(password string) bool {
	if utf8.RuneCountInString(password) < 8 {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case r <= unicode.MaxASCII && unicode.IsLetter(r):
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func onlyDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// validate возвращает первую ошибку валидации как *models.ValidationError
func (s *LedgerService) validate(v interface{}) error {
	err := s.validator.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return err
	}

	e := validationErrors[0]
	var reason string
	switch e.Tag() {
	case "required":
		reason = "поле обязательно"
	case "len":
		reason = "должно содержать ровно " + e.Param() + " символов"
	case "digits":
		reason = "должно состоять только из цифр"
	case "email":
		reason = "неверный формат email"
	case "datetime":
		reason = "дата должна быть в формате ГГГГ-ММ-ДД"
	case "maxbytes":
		reason = "не длиннее " + e.Param() + " байт"
	case "password":
		reason = "пароль должен содержать минимум 8 символов, хотя бы одну букву и одну цифру"
	default:
		reason = "не прошло проверку " + e.Tag()
	}
	return models.NewValidationError(e.Field(), reason)
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return models.NewValidationError("amount", "сумма должна быть больше 0")
	}
	if !amount.Equal(amount.Truncate(amountScale)) {
		return models.NewValidationError("amount", "не более двух знаков после запятой")
	}
	return nil
}

// observe логирует операцию и учитывает ее в метриках
func (s *LedgerService) observe(operation, accountNumber string, start time.Time, err error) {
	utils.LogOperation(s.logger.With(zap.String("account_number", accountNumber)), operation, start, err)
}

// notify отправляет уведомления после фиксации. Ошибки только логируются.
func (s *LedgerService) notify(ctx context.Context, events ...LedgerEvent) {
	for _, event := range events {
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.logger.Warn("notification failed",
				zap.String("account_number", event.Record.AccountNumber),
				zap.Uint64("transaction_id", event.Record.ID),
				zap.Error(err),
			)
		}
	}
}

// OpenAccount открывает новый счет с начальным балансом
func (s *LedgerService) OpenAccount(ctx context.Context, req OpenAccountRequest) (account *models.Account, err error) {
	defer func(start time.Time) {
		number := ""
		if account != nil {
			number = account.AccountNumber
		}
		s.observe("open_account", number, start, err)
	}(time.Now())

	if err := s.validate(req); err != nil {
		return nil, err
	}
	if req.OpeningBalance.LessThan(s.minOpeningBalance) {
		return nil, models.NewValidationError("opening_balance",
			"начальный баланс должен быть не меньше "+s.minOpeningBalance.StringFixed(amountScale))
	}
	if !req.OpeningBalance.Equal(req.OpeningBalance.Truncate(amountScale)) {
		return nil, models.NewValidationError("opening_balance", "не более двух знаков после запятой")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.numberAttempts; attempt++ {
		number, err := s.generateNumber()
		if err != nil {
			return nil, err
		}

		candidate := &models.Account{
			AccountNumber: number,
			Name:          req.Name,
			DOB:           req.DOB,
			City:          req.City,
			Address:       req.Address,
			ContactNumber: req.ContactNumber,
			Email:         req.Email,
			Balance:       req.OpeningBalance,
			Status:        models.AccountStatusActive,
		}
		credential := &models.Credential{AccountNumber: number, PasswordHash: hash}

		err = s.store.CreateAccount(ctx, candidate, credential)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, models.ErrDuplicateAccountNumber) {
			return nil, err
		}
		s.logger.Debug("account number collision, regenerating",
			zap.String("account_number", number),
			zap.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("не удалось подобрать свободный номер счета за %d попыток: %w",
		s.numberAttempts, models.ErrDuplicateAccountNumber)
}

// Authenticate проверяет номер счета и пароль
func (s *LedgerService) Authenticate(ctx context.Context, accountNumber, password string) (err error) {
	defer func(start time.Time) { s.observe("authenticate", accountNumber, start, err) }(time.Now())

	ok, err := database.VerifyCredential(ctx, s.store, accountNumber, password)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrAuthenticationFailed
	}
	return nil
}

// GetAccount возвращает данные счета
func (s *LedgerService) GetAccount(ctx context.Context, accountNumber string) (*models.Account, error) {
	return s.store.GetAccount(ctx, accountNumber)
}

// Balance возвращает текущий баланс счета
func (s *LedgerService) Balance(ctx context.Context, accountNumber string) (decimal.Decimal, error) {
	account, err := s.store.GetAccount(ctx, accountNumber)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// History возвращает журнал операций счета в порядке проведения
func (s *LedgerService) History(ctx context.Context, accountNumber string) ([]models.Transaction, error) {
	if _, err := s.store.GetAccount(ctx, accountNumber); err != nil {
		return nil, err
	}
	records, err := s.store.ListTransactions(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if records == nil {
		return []models.Transaction{}, nil
	}
	return records, nil
}

// Credit зачисляет средства на счет
func (s *LedgerService) Credit(ctx context.Context, accountNumber string, amount decimal.Decimal) (record *models.Transaction, err error) {
	defer func(start time.Time) { s.observe("credit", accountNumber, start, err) }(time.Now())

	return s.applySingle(ctx, accountNumber, amount, models.TransactionTypeCredit)
}

// Debit списывает средства со счета
func (s *LedgerService) Debit(ctx context.Context, accountNumber string, amount decimal.Decimal) (record *models.Transaction, err error) {
	defer func(start time.Time) { s.observe("debit", accountNumber, start, err) }(time.Now())

	return s.applySingle(ctx, accountNumber, amount, models.TransactionTypeDebit)
}

func (s *LedgerService) applySingle(ctx context.Context, accountNumber string, amount decimal.Decimal, kind models.TransactionType) (*models.Transaction, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	var (
		record   *models.Transaction
		snapshot models.Account
	)
	err := s.store.WithinTransaction(ctx, []string{accountNumber}, func(tx database.LedgerTx) error {
		account, err := tx.Account(accountNumber)
		if err != nil {
			return err
		}
		if !account.IsActive() {
			return models.ErrAccountDeactivated
		}

		balance := account.Balance.Add(amount)
		if kind == models.TransactionTypeDebit {
			if amount.GreaterThan(account.Balance) {
				return models.ErrInsufficientFunds
			}
			balance = account.Balance.Sub(amount)
		}

		if err := tx.UpdateBalance(accountNumber, balance); err != nil {
			return err
		}
		record = &models.Transaction{
			AccountNumber: accountNumber,
			Type:          kind,
			Amount:        amount,
			BalanceAfter:  balance,
		}
		if err := tx.AppendTransaction(record); err != nil {
			return err
		}

		snapshot = *account
		snapshot.Balance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, LedgerEvent{Account: snapshot, Record: *record})
	return record, nil
}

// Transfer переводит средства между счетами. Обе ветви перевода фиксируются
// вместе или не фиксируются вовсе.
func (s *LedgerService) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (receipt *TransferReceipt, err error) {
	defer func(start time.Time) { s.observe("transfer", from, start, err) }(time.Now())

	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	transferID := uuid.NewString()
	var (
		out, in        *models.Transaction
		source, target models.Account
	)
	err = s.store.WithinTransaction(ctx, []string{from, to}, func(tx database.LedgerTx) error {
		src, err := tx.Account(from)
		if err != nil {
			return err
		}
		dst, err := tx.Account(to)
		if err != nil {
			return err
		}
		if !src.IsActive() || !dst.IsActive() {
			return models.ErrAccountDeactivated
		}
		if amount.GreaterThan(src.Balance) {
			return models.ErrInsufficientFunds
		}

		srcBalance := src.Balance.Sub(amount)
		dstBalance := dst.Balance.Add(amount)
		if from == to {
			srcBalance = src.Balance
			dstBalance = src.Balance
		}

		if err := tx.UpdateBalance(from, srcBalance); err != nil {
			return err
		}
		if err := tx.UpdateBalance(to, dstBalance); err != nil {
			return err
		}

		out = &models.Transaction{
			AccountNumber: from,
			Type:          models.TransactionTypeTransfer,
			Amount:        amount,
			BalanceAfter:  srcBalance,
			TransferID:    &transferID,
			Counterparty:  to,
			Direction:     models.TransferDirectionOut,
		}
		in = &models.Transaction{
			AccountNumber: to,
			Type:          models.TransactionTypeTransfer,
			Amount:        amount,
			BalanceAfter:  dstBalance,
			TransferID:    &transferID,
			Counterparty:  from,
			Direction:     models.TransferDirectionIn,
		}
		if err := tx.AppendTransaction(out); err != nil {
			return err
		}
		if err := tx.AppendTransaction(in); err != nil {
			return err
		}

		source, target = *src, *dst
		source.Balance, target.Balance = srcBalance, dstBalance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx,
		LedgerEvent{Account: source, Record: *out},
		LedgerEvent{Account: target, Record: *in},
	)
	return &TransferReceipt{TransferID: transferID, From: *out, To: *in}, nil
}

// Deactivate закрывает счет. Повторный вызов ничего не меняет.
func (s *LedgerService) Deactivate(ctx context.Context, accountNumber string) (err error) {
	defer func(start time.Time) { s.observe("deactivate", accountNumber, start, err) }(time.Now())

	account, err := s.store.GetAccount(ctx, accountNumber)
	if err != nil {
		return err
	}
	if !account.IsActive() {
		return nil
	}
	return s.store.UpdateAccountStatus(ctx, accountNumber, models.AccountStatusDeactivated)
}

// ChangePassword заменяет пароль владельца счета
func (s *LedgerService) ChangePassword(ctx context.Context, accountNumber, newPassword string) (err error) {
	defer func(start time.Time) { s.observe("change_password", accountNumber, start, err) }(time.Now())

	if err := s.validate(passwordRequest{Password: newPassword}); err != nil {
		return err
	}
	if _, err := s.store.GetAccount(ctx, accountNumber); err != nil {
		return err
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.UpdateCredential(ctx, accountNumber, hash)
}

// UpdateProfile перезаписывает имя, город и адрес
func (s *LedgerService) UpdateProfile(ctx context.Context, accountNumber string, profile models.Profile) (err error) {
	defer func(start time.Time) { s.observe("update_profile", accountNumber, start, err) }(time.Now())

	if err := s.validate(profileRequest{Name: profile.Name}); err != nil {
		return err
	}
	return s.store.UpdateAccountProfile(ctx, accountNumber, profile)
}
