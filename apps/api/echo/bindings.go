package echoapi

import (
	"github.com/go-playground/validator/v10"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/school"
)

type (
	LoginRequest struct {
		Identity string `json:"identity" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}

	RefreshRequest struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	RefreshResponse struct {
		AccessToken string `json:"access_token"`
	}

	// NewSchoolRequest is the JSON part of the multipart school sign-up.
	NewSchoolRequest struct {
		Name            string `json:"name" validate:"required"`
		Email           string `json:"email" validate:"required,email"`
		Siret           string `json:"siret" validate:"required,siret"`
		PaymentMethodID string `json:"payment_method_id" validate:"required"`
		ManagedBy       []int  `json:"managed_by"`
	}

	NewSchoolResponse struct {
		School      school.School `json:"school"`
		SkippedRows []RowErrorDTO `json:"skipped_rows,omitempty"`
	}

	RowErrorDTO struct {
		File  string `json:"file"`
		Row   int    `json:"row"`
		Error string `json:"error"`
	}

	VerificationRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	VerificationConfirmRequest struct {
		Email string `json:"email" validate:"required,email"`
		Code  string `json:"code" validate:"required,len=6,number"`
	}

	VerificationConfirmResponse struct {
		Verified bool `json:"verified"`
	}

	ContactRequest struct {
		Name    string `json:"name" validate:"required"`
		Email   string `json:"email" validate:"required,email"`
		Subject string `json:"subject" validate:"required"`
		Message string `json:"message" validate:"required"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Identity = core.CleanString(lr.Identity, true /* lower */)
	return validate.Struct(lr)
}

func (rr *RefreshRequest) Validate(validate *validator.Validate) error {
	rr.RefreshToken = core.CleanString(rr.RefreshToken)
	return validate.Struct(rr)
}

func (sr *NewSchoolRequest) Validate(validate *validator.Validate) error {
	sr.Name = core.CleanString(sr.Name)
	sr.Email = core.CleanString(sr.Email, true /* lower */)
	sr.Siret = core.CleanString(sr.Siret)
	return validate.Struct(sr)
}

func (vr *VerificationRequest) Validate(validate *validator.Validate) error {
	vr.Email = core.CleanString(vr.Email, true /* lower */)
	return validate.Struct(vr)
}

func (vr *VerificationConfirmRequest) Validate(validate *validator.Validate) error {
	vr.Email = core.CleanString(vr.Email, true /* lower */)
	vr.Code = core.CleanString(vr.Code)
	return validate.Struct(vr)
}

func (cr *ContactRequest) Validate(validate *validator.Validate) error {
	cr.Name = core.CleanString(cr.Name)
	cr.Email = core.CleanString(cr.Email, true /* lower */)
	cr.Subject = core.CleanString(cr.Subject)
	cr.Message = core.CleanString(cr.Message)
	return validate.Struct(cr)
}
