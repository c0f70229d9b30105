package controllers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"personalbank/middleware"
	"personalbank/models"
	"personalbank/services"
)

// BankController обрабатывает запросы, связанные с банковскими операциями
type BankController struct {
	ledger *services.LedgerService
	logger *zap.Logger
}

// AmountRequest сумма пополнения или списания
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TransferRequest представляет данные для перевода средств
type TransferRequest struct {
	ToAccount string          `json:"to_account"`
	Amount    decimal.Decimal `json:"amount"`
}

type PasswordRequest struct {
	Password string `json:"password"`
}

type ProfileRequest struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	Address string `json:"address"`
}

type BalanceResponse struct {
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
}

// NewBankController создает новый экземпляр BankController
func NewBankController(ledger *services.LedgerService, logger *zap.Logger) *BankController {
	return &BankController{ledger: ledger, logger: logger}
}

// currentAccount номер счета из токена
func (c *BankController) currentAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountNumber, ok := middleware.AccountNumberFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return "", false
	}
	return accountNumber, true
}

// OpenAccount открывает новый счет
func (c *BankController) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req services.OpenAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := c.ledger.OpenAccount(r.Context(), req)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// GetAccount показывает данные счета по номеру
func (c *BankController) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := c.ledger.GetAccount(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (c *BankController) Balance(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := c.currentAccount(w, r)
	if !ok {
		return
	}

	balance, err := c.ledger.Balance(r.Context(), accountNumber)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{AccountNumber: accountNumber, Balance: balance})
}

func (c *BankController) Transactions(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := c.currentAccount(w, r)
	if !ok {
		return
	}

	records, err := c.ledger.History(r.Context(), accountNumber)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Statement выгружает выписку по счету в XML
func (c *BankController) Statement(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := c.currentAccount(w, r)
	if !ok {
		return
	}

	account, err := c.ledger.GetAccount(r.Context(), accountNumber)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	records, err := c.ledger.History(r.Context(), accountNumber)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}

	doc := BuildStatement(account, records)
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="statement-`+accountNumber+`.xml"`)
	w.WriteHeader(http.StatusOK)
	if _, err := doc.WriteTo(w); err != nil {
		c.logger.Warn("failed to write statement", zap.Error(err))
	}
}

// Credit обрабатывает запрос на пополнение счета
func (c *BankController) Credit(w http.ResponseWriter, r *http.Request) {
	c.applyAmount(w, r, c.ledger.Credit)
}

// Debit обрабатывает запрос на списание со счета
func (c *BankController) Debit(w http.ResponseWriter, r *http.Request) {
	c.applyAmount(w, r, c.ledger.Debit)
}

type amountOperation func(ctx context.Context, accountNumber string, amount decimal.Decimal) (*models.Transaction, error)

func (c *BankController) applyAmount(w http.ResponseWriter, r *http.Request, op amountOperation) {
	accountNumber, ok := c.currentAccount(w, r)
	if !ok {
		return
	}

	var req AmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	record, err := op(r.Context(), accountNumber, req.Amount)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Transfer обрабатывает запрос на перевод средств
func (c *BankController) Transfer(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := c.currentAccount(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	receipt, err := c.ledger.Transfer(r.Context(), accountNumber, req.ToAccount, req.Amount)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (c *BankController) Deactivate(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := c.currentAccount(w, r)
	if !ok {
		return
	}

	if err := c.ledger.Deactivate(r.Context(), accountNumber); err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account_number": accountNumber, "status": string(models.AccountStatusDeactivated)})
}

func (c *BankController) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := c.currentAccount(w, r)
	if !ok {
		return
	}

	var req PasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := c.ledger.ChangePassword(r.Context(), accountNumber, req.Password); err != nil {
		writeError(w, c.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *BankController) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountNumber, ok := c.currentAccount(w, r)
	if !ok {
		return
	}

	var req ProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile := models.Profile{Name: req.Name, City: req.City, Address: req.Address}
	if err := c.ledger.UpdateProfile(r.Context(), accountNumber, profile); err != nil {
		writeError(w, c.logger, err)
		return
	}

	account, err := c.ledger.GetAccount(r.Context(), accountNumber)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// RegisterRoutes регистрирует публичные маршруты и маршруты владельца счета
func (c *BankController) RegisterRoutes(public, protected *mux.Router) {
	public.HandleFunc("/api/accounts", c.OpenAccount).Methods("POST")
	public.HandleFunc("/api/accounts/{number:[0-9]+}", c.GetAccount).Methods("GET")

	protected.HandleFunc("/balance", c.Balance).Methods("GET")
	protected.HandleFunc("/transactions", c.Transactions).Methods("GET")
	protected.HandleFunc("/statement.xml", c.Statement).Methods("GET")
	protected.HandleFunc("/credit", c.Credit).Methods("POST")
	protected.HandleFunc("/debit", c.Debit).Methods("POST")
	protected.HandleFunc("/transfer", c.Transfer).Methods("POST")
	protected.HandleFunc("/deactivate", c.Deactivate).Methods("POST")
	protected.HandleFunc("/password", c.ChangePassword).Methods("PUT")
	protected.HandleFunc("/profile", c.UpdateProfile).Methods("PUT")
}
