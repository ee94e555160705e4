// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает ошибку сервисного слоя (сентинелы пакета service),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - краткое безопасное message без утечки деталей.
//
// Полные цепочки ошибок остаются в логах; наружу уходит только
// стабильный машиночитаемый код и нейтральное описание.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/algecom/auth-service/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку сервисного слоя в HTTP-статус и
// унифицированный ответ.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500/internal, чтобы не
//     послать "200 OK" с телом ошибки и не маскировать баг;
//   - ошибки аутентификации не различают причину отказа наружу;
//   - неизвестные ошибки — 500/internal без утечки деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return http.StatusInternalServerError, response("internal", "internal error")
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountInactive),
		errors.Is(err, service.ErrEmailNotVerified),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenRevoked):
		return http.StatusUnauthorized, response("unauthenticated", "unauthenticated")

	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, response("already_exists", "already exists")

	case errors.Is(err, service.ErrAccountNotFound):
		return http.StatusNotFound, response("not_found", "not found")

	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword),
		errors.Is(err, service.ErrNameRequired):
		return http.StatusBadRequest, response("invalid_argument", "invalid argument")

	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, response("canceled", "canceled")

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, response("deadline_exceeded", "deadline exceeded")

	default:
		return http.StatusInternalServerError, response("internal", "internal error")
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)
	write(w, r, status, resp)
}

// WriteLinkError — единый ответ для сбоев подтверждения по ссылке
// (verify-email, password-reset). Expired/malformed/wrong-purpose
// различаются только в логах; пользователю уходит одно сообщение.
func WriteLinkError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrTokenExpired) {
		write(w, r, http.StatusBadRequest, response("link_invalid", "link invalid or expired"))
		return
	}

	WriteError(w, r, err)
}

// WriteInvalidArgument — ответ на локальную ошибку разбора запроса
// (битый JSON, неизвестные поля).
func WriteInvalidArgument(w http.ResponseWriter, r *http.Request) {
	write(w, r, http.StatusBadRequest, response("invalid_argument", "invalid argument"))
}

func response(code, msg string) ErrorResponse {
	return ErrorResponse{Error: APIError{Code: code, Message: msg}}
}

func write(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
