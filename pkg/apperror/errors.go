package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Settlement Lifecycle (SET) ----

func ErrSettlementNotFound() *AppError {
	return New("SET_001", "Settlement not found", http.StatusNotFound)
}

func ErrInvalidState(status string) *AppError {
	return New("SET_002", fmt.Sprintf("Settlement is not pending (status: %s)", status), http.StatusConflict)
}

func ErrWalletNotFound() *AppError {
	return New("SET_003", "Wallet not found", http.StatusNotFound)
}

func ErrWalletExists() *AppError {
	return New("SET_004", "Wallet already provisioned", http.StatusConflict)
}

// ---- Key Custody (CUS) ----

// Custody error codes, referenced where control flow depends on which
// custody failure occurred.
const (
	CodeMissingCustody        = "CUS_001"
	CodeAuthenticationFailure = "CUS_002"
	CodeInvalidKeyMaterial    = "CUS_003"
	CodeIntegrityViolation    = "CUS_004"
)

func ErrMissingCustody() *AppError {
	return New(CodeMissingCustody, "No custodial signing key on file for seller", http.StatusUnprocessableEntity)
}

func ErrAuthenticationFailure(err error) *AppError {
	return Wrap(CodeAuthenticationFailure, "Custody decryption failed: secret does not match", http.StatusUnprocessableEntity, err)
}

func ErrInvalidKeyMaterial(length int) *AppError {
	return New(CodeInvalidKeyMaterial, fmt.Sprintf("Invalid key material: expected 32 or 64 bytes, got %d", length), http.StatusUnprocessableEntity)
}

func ErrCustodyIntegrityViolation(stored, derived string) *AppError {
	return New(CodeIntegrityViolation,
		fmt.Sprintf("Custody integrity violation: stored address %s does not match key-derived address %s", stored, derived),
		http.StatusConflict)
}

// ---- Ledger (LED) ----

func ErrLedger(err error) *AppError {
	return Wrap("LED_001", "Ledger transaction failed", http.StatusBadGateway, err)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Validation (VAL) ----

// Validation creates a 400 error for malformed input.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
