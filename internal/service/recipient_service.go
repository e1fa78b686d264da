package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/kpi-ops-api/internal/kpi"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

// ErrRecipientNotFound indicates a role resolved to no deliverable address.
var ErrRecipientNotFound = errors.New("no recipient found for role")

// Recipient is one concrete email destination resolved from a role tag.
type Recipient struct {
	Name   string
	Email  string
	Role   kpi.Role
	UserID *uint
}

// RecipientService resolves role tags to email addresses.
type RecipientService interface {
	Resolve(ctx context.Context, subject models.User, roles []kpi.Role) ([]Recipient, []error)
}

type recipientService struct {
	groups repository.RecipientGroupRepository
	users  repository.UserRepository
	logger zerolog.Logger
}

// NewRecipientService constructs the recipient resolver. The FE role resolves to the scored
// user; other roles use configured recipient groups and fall back to users holding the role.
func NewRecipientService(groups repository.RecipientGroupRepository, users repository.UserRepository, logger zerolog.Logger) RecipientService {
	return &recipientService{
		groups: groups,
		users:  users,
		logger: logger.With().Str("component", "recipient_service").Logger(),
	}
}

// Resolve returns recipients deduplicated by address (case-insensitive), in role order.
// Lookup failures for one role are returned alongside the recipients found for the others.
func (s *recipientService) Resolve(ctx context.Context, subject models.User, roles []kpi.Role) ([]Recipient, []error) {
	recipients := make([]Recipient, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	var errs []error

	add := func(recipient Recipient) {
		key := strings.ToLower(strings.TrimSpace(recipient.Email))
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		recipient.Email = key
		recipients = append(recipients, recipient)
	}

	for _, role := range roles {
		resolved, err := s.resolveRole(ctx, subject, role)
		if err != nil {
			s.logger.Warn().Err(err).Str("role", string(role)).Uint("user_id", subject.ID).Msg("recipient lookup failed")
			errs = append(errs, err)
			continue
		}
		for _, recipient := range resolved {
			add(recipient)
		}
	}

	return recipients, errs
}

func (s *recipientService) resolveRole(ctx context.Context, subject models.User, role kpi.Role) ([]Recipient, error) {
	if role == kpi.RoleFE {
		if strings.TrimSpace(subject.Email) == "" {
			return nil, fmt.Errorf("%w %q: user %d has no email", ErrRecipientNotFound, role, subject.ID)
		}
		id := subject.ID
		return []Recipient{{Name: subject.Name, Email: subject.Email, Role: role, UserID: &id}}, nil
	}

	groups, err := s.groups.ListByRole(ctx, string(role))
	if err != nil {
		return nil, fmt.Errorf("recipient groups for %q: %w", role, err)
	}
	if len(groups) > 0 {
		out := make([]Recipient, 0, len(groups))
		for _, group := range groups {
			out = append(out, Recipient{Name: group.Name, Email: group.Email, Role: role})
		}
		return out, nil
	}

	users, err := s.users.ListByRole(ctx, string(role))
	if err != nil {
		return nil, fmt.Errorf("users for %q: %w", role, err)
	}
	out := make([]Recipient, 0, len(users))
	for _, user := range users {
		if strings.TrimSpace(user.Email) == "" {
			continue
		}
		id := user.ID
		out = append(out, Recipient{Name: user.Name, Email: user.Email, Role: role, UserID: &id})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w %q", ErrRecipientNotFound, role)
	}
	return out, nil
}
