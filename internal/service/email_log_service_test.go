package service

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/kpi"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

func TestEmailLogServiceListAndResend(t *testing.T) {
	db := setupServiceDB(t)
	ctx := context.Background()
	validate := validator.New()

	sender := &recordingSender{failFor: map[string]error{"ops@example.com": errors.New("smtp timeout")}}
	logs := repository.NewEmailLogRepository(db)
	emails := NewEmailTemplateService(repository.NewEmailTemplateRepository(db), logs, sender, "kpi@example.com", testLogger())
	svc := NewEmailLogService(logs, emails, nil, validate, testLogger())

	failed, err := emails.Send(ctx, EmailRequest{
		TemplateType: TemplateWarningLetter,
		Recipient:    Recipient{Name: "Ops", Email: "Ops@Example.com", Role: kpi.RoleManager},
		Variables:    map[string]string{"user_name": "Dev", "period": "Oct-25", "overall_score": "31.00", "rating": "Unsatisfactory"},
		KPITriggerID: uintPtr(3),
	})
	require.NoError(t, err)
	require.Equal(t, models.EmailStatusFailed, failed.Status)
	require.Equal(t, "smtp timeout", failed.ErrorMessage)

	_, err = emails.Send(ctx, EmailRequest{
		TemplateType: TemplateWarningLetter,
		Recipient:    Recipient{Name: "Dev", Email: "dev@example.com", Role: kpi.RoleFE},
		KPITriggerID: uintPtr(3),
	})
	require.NoError(t, err)

	items, meta, err := svc.List(ctx, dto.EmailLogListQuery{KPITriggerID: 3, Status: models.EmailStatusFailed})
	require.NoError(t, err)
	require.EqualValues(t, 1, meta.TotalItems)
	require.Equal(t, "ops@example.com", items[0].RecipientEmail)

	delete(sender.failFor, "ops@example.com")
	resent, err := svc.Resend(ctx, failed.ID, admin)
	require.NoError(t, err)
	require.Equal(t, models.EmailStatusSent, resent.Status)
	require.Equal(t, 2, resent.Attempts)
	require.Contains(t, sender.sent[len(sender.sent)-1].Subject, "Dev")

	_, err = svc.Resend(ctx, failed.ID, admin)
	require.ErrorIs(t, err, ErrEmailNotResendable)

	_, err = svc.Resend(ctx, 777, admin)
	require.ErrorIs(t, err, ErrEmailLogNotFound)
}
