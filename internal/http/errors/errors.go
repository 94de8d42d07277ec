package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// AppError es el error estándar que ven los clientes HTTP.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // causa, solo para logs
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New crea un nuevo AppError
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap crea un AppError envolviendo un error existente
func Wrap(err error, status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// FromError convierte cualquier error en AppError; lo desconocido es un 500.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternalServerError.WithCause(err)
}

// WithDetail devuelve una COPIA con detail, para no mutar los predefinidos.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause devuelve una COPIA con la causa.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe err como JSON. La causa nunca llega al cliente.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}

// =================================================================================
// LISTA DE ERRORES PREDEFINIDOS
// =================================================================================

var (
	ErrBadRequest        = New(http.StatusBadRequest, "BAD_REQUEST", "La solicitud es inválida.")
	ErrInvalidState      = New(http.StatusBadRequest, "INVALID_STATE", "El estado del login es inválido o expiró.")
	ErrNotFound          = New(http.StatusNotFound, "NOT_FOUND", "El recurso solicitado no existe.")
	ErrMethodNotAllowed  = New(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Método HTTP no permitido.")
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Demasiadas solicitudes. Intentá más tarde.")
)

var (
	ErrInternalServerError = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Ocurrió un error inesperado.")
	ErrUntrustedUpstream   = New(http.StatusBadGateway, "UNTRUSTED_UPSTREAM", "El proveedor de identidad no presentó un certificado confiable.")
	ErrUpstreamRejected    = New(http.StatusBadGateway, "UPSTREAM_REJECTED", "El proveedor de identidad rechazó la solicitud.")
	ErrHandshakeFailed     = New(http.StatusBadGateway, "HANDSHAKE_FAILED", "No se pudo completar el login con el proveedor.")
	ErrUpstreamTimeout     = New(http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "El proveedor de identidad no respondió a tiempo.")
	ErrServiceUnavailable  = New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Servicio no disponible.")
)
