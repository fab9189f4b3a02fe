package common

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	CompanyIDKey contextKey = "company_id"
	RoleKey      contextKey = "role"
)

// Caller roles carried in the identity token
const (
	RoleClient   = "CLIENT"
	RoleOperator = "OPERATOR"
	RoleAdmin    = "ADMIN"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{
		field: message,
	}
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
}

// SendClientError sends a client error response
func SendClientError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("CLIENT_ERROR", message, nil))
}

// SendServerError sends a server error response
func SendServerError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", message, nil))
}

// SendNotFoundError sends a not found error response
func SendNotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, CreateErrorResponse("NOT_FOUND", fmt.Sprintf("%s not found", resource), nil))
}

// SendUnauthorizedError sends an unauthorized error response
func SendUnauthorizedError(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, CreateErrorResponse("UNAUTHORIZED", "Unauthorized access", nil))
}

// SendForbiddenError sends a forbidden error response
func SendForbiddenError(c echo.Context) error {
	return c.JSON(http.StatusForbidden, CreateErrorResponse("FORBIDDEN", "Insufficient permissions", nil))
}

// SendDomainError maps a taxonomy error onto its HTTP response.
func SendDomainError(c echo.Context, err error) error {
	switch KindOf(err) {
	case KindConfigurationMissing:
		return c.JSON(http.StatusUnprocessableEntity, CreateErrorResponse("CONFIGURATION_MISSING", err.Error(), nil))
	case KindValidationConflict:
		return c.JSON(http.StatusConflict, CreateErrorResponse("VALIDATION_CONFLICT", err.Error(), nil))
	case KindTransientConnectivity:
		return c.JSON(http.StatusServiceUnavailable, CreateErrorResponse("EXTERNAL_UNAVAILABLE", err.Error(), nil))
	case KindNotFound:
		return c.JSON(http.StatusNotFound, CreateErrorResponse("NOT_FOUND", err.Error(), nil))
	case KindForbidden:
		return SendForbiddenError(c)
	case KindInvalidInput:
		return SendClientError(c, err.Error())
	default:
		return SendServerError(c, err.Error())
	}
}

// ValidateUUID validates UUID format
func ValidateUUID(idStr string, fieldName string) (uuid.UUID, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return uuid.Nil, fmt.Errorf("%s is required", fieldName)
	}
	if len(idStr) != 36 {
		return uuid.Nil, fmt.Errorf("%s must be exactly 36 characters (including hyphens)", fieldName)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s contains invalid characters: %v", fieldName, err)
	}

	return id, nil
}

// ValidateRequiredString validates required string fields
func ValidateRequiredString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateOptionalString validates optional string fields
func ValidateOptionalString(value *string, fieldName string, maxLength int) error {
	if value != nil {
		if len(*value) > maxLength {
			return fmt.Errorf("%s cannot exceed %d characters", fieldName, maxLength)
		}
		*value = strings.TrimSpace(*value)
	}
	return nil
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// GetCompanyIDFromContext extracts the caller's company ID from the request context
func GetCompanyIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	companyID, ok := ctx.Value(CompanyIDKey).(uuid.UUID)
	return companyID, ok
}

// GetRoleFromContext extracts the caller's role from the request context
func GetRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok
}

// Actor is the identity of whoever triggers a core operation.
type Actor struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string
}

// IsOperator reports whether the actor acts on behalf of the platform rather than a client company.
func (a Actor) IsOperator() bool {
	return a.Role == RoleOperator || a.Role == RoleAdmin
}

// ActorFromContext assembles the caller identity set by the JWT middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	userID, ok := GetUserIDFromContext(ctx)
	if !ok {
		return Actor{}, false
	}
	role, ok := GetRoleFromContext(ctx)
	if !ok {
		return Actor{}, false
	}
	companyID, _ := GetCompanyIDFromContext(ctx)
	return Actor{UserID: userID, CompanyID: companyID, Role: role}, true
}

// WithActor stores an identity on ctx the same way the JWT middleware does.
func WithActor(ctx context.Context, actor Actor) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, actor.UserID)
	ctx = context.WithValue(ctx, CompanyIDKey, actor.CompanyID)
	return context.WithValue(ctx, RoleKey, actor.Role)
}

// SanitizeHTMLField sanitizes string pointer fields for HTML display
func SanitizeHTMLField(field *string, fieldName string) error {
	if field != nil && *field != "" {
		sanitized := html.EscapeString(*field)

		if len(sanitized) > 1000 {
			return fmt.Errorf("%s content exceeds maximum allowed length", fieldName)
		}

		*field = sanitized
	}
	return nil
}

// SanitizeSearchQuery strips LIKE wildcards from a search term. The result is
// always bound as a parameter.
func SanitizeSearchQuery(query string) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}

	query = strings.ReplaceAll(query, "%", "")
	query = strings.ReplaceAll(query, "_", "")

	if len(query) > 100 {
		query = query[:100]
	}

	return strings.TrimSpace(query)
}

// SecureErrorMessage creates standardized error messages to prevent information leakage
func SecureErrorMessage(operation string, err error) error {
	if err == nil {
		return nil
	}

	// Taxonomy errors are already user-facing and keep their kind.
	if KindOf(err) != KindInternal {
		return err
	}
	return fmt.Errorf("failed to %s: operation could not be completed", operation)
}

// ValidateSortField validates and secures sort field parameters
func ValidateSortField(sortField string) string {
	allowedFields := map[string]bool{
		"created_at":   true,
		"updated_at":   true,
		"total_ht":     true,
		"order_number": true,
		"status":       true,
	}

	if allowedFields[sortField] {
		return "o." + sortField
	}

	return "o.created_at"
}

// ValidateSortOrder validates sort order parameters
func ValidateSortOrder(sortOrder string) string {
	if strings.ToLower(sortOrder) == "asc" {
		return "ASC"
	}
	return "DESC"
}

// ValidatePaginationParams validates pagination parameters
func ValidatePaginationParams(limit, offset int) (int, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	if offset < 0 {
		offset = 0
	}
	if offset > 1000000 {
		return 0, 0, fmt.Errorf("offset cannot exceed 1,000,000")
	}

	return limit, offset, nil
}
