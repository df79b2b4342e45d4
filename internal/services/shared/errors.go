// Package shared holds helpers used by every service handler.
package shared

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldError builds a status error carrying a BadRequest detail.
func FieldError(code codes.Code, msg string, violations ...FieldViolation) error {
	st := status.New(code, msg)
	if len(violations) == 0 {
		return st.Err()
	}

	br := &errdetails.BadRequest{}
	for _, v := range violations {
		br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{
			Field:       v.Field,
			Description: v.Message,
		})
	}
	detailed, err := st.WithDetails(br)
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

// Violations extracts the field violations of a status error, if any.
func Violations(err error) []FieldViolation {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	var out []FieldViolation
	for _, d := range st.Details() {
		if br, ok := d.(*errdetails.BadRequest); ok {
			for _, fv := range br.GetFieldViolations() {
				out = append(out, FieldViolation{Field: fv.GetField(), Message: fv.GetDescription()})
			}
		}
	}
	return out
}

// NotFoundOr maps gorm.ErrRecordNotFound to NotFound and anything else to Internal.
func NotFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return status.Errorf(codes.NotFound, "Không tìm thấy %s", what)
	}
	return status.Errorf(codes.Internal, "Lỗi truy vấn %s: %v", what, err)
}

// IsStatus reports whether err already carries a gRPC status.
func IsStatus(err error) bool {
	_, ok := status.FromError(err)
	return ok
}

// Internal wraps err unless it already carries a status.
func Internal(err error, msg string) error {
	if err == nil {
		return nil
	}
	if IsStatus(err) {
		return err
	}
	return status.Errorf(codes.Internal, "%s: %v", msg, err)
}

// IsDuplicateKey reports a unique index violation. The connection must be
// opened with gorm.Config.TranslateError.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
