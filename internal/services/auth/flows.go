// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"codeberg.org/oliverandrich/authcore/internal/i18n"
	"codeberg.org/oliverandrich/authcore/internal/metrics"
	"codeberg.org/oliverandrich/authcore/internal/models"
	"codeberg.org/oliverandrich/authcore/internal/repository"
	"codeberg.org/oliverandrich/authcore/internal/services/otp"
	"codeberg.org/oliverandrich/authcore/internal/services/password"
	"codeberg.org/oliverandrich/authcore/internal/services/session"
)

// RegisterParams holds the parameters for account registration
type RegisterParams struct {
	Name     string
	Email    string
	Password string
}

// Register creates an account and signs it in. A failing welcome mail is
// logged and counted but does not undo the registration.
func (s *Service) Register(ctx context.Context, params RegisterParams) (account *models.Account, sess *Session, err error) {
	defer func(start time.Time) { observe("register", start, err) }(time.Now())

	if err := requireFields("name", params.Name, "email", params.Email, "password", params.Password); err != nil {
		return nil, nil, err
	}

	email, err := parseEmail(params.Email)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.store.GetAccountByEmail(ctx, email); err == nil {
		return nil, nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, internalError("lookup account", err)
	}

	hash, err := s.hashPassword(params.Password)
	if err != nil {
		return nil, nil, err
	}

	account = &models.Account{
		Name:         strings.TrimSpace(params.Name),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, nil, storeError("create account", err)
	}

	sess, err = s.issueSession(account.ID)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("register_success", "account_id", account.ID)

	// Failure is logged and counted inside notify.
	_ = s.notify(ctx, "welcome", account.Email, map[string]any{
		"Name":  account.Name,
		"Email": account.Email,
	})

	return account, sess, nil
}

// Login checks the credentials and issues a session.
func (s *Service) Login(ctx context.Context, email, plaintext string) (account *models.Account, sess *Session, err error) {
	defer func(start time.Time) { observe("login", start, err) }(time.Now())

	if err := requireFields("email", email, "password", plaintext); err != nil {
		return nil, nil, err
	}

	account, err = s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Spend the same bcrypt time as a real comparison
			if s.dummyHash != "" {
				_, _ = s.hasher.Verify(plaintext, s.dummyHash)
			}
			slog.Info("login_failed", "reason", "unknown_email")
			return nil, nil, ErrNotFound
		}
		return nil, nil, internalError("lookup account", err)
	}

	ok, err := s.hasher.Verify(plaintext, account.PasswordHash)
	if err != nil {
		return nil, nil, internalError("verify password", err)
	}
	if !ok {
		slog.Info("login_failed", "account_id", account.ID, "reason", "bad_credentials")
		return nil, nil, ErrBadCredentials
	}

	sess, err = s.issueSession(account.ID)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("login_success", "account_id", account.ID)
	return account, sess, nil
}

// Logout records the end of a session. Tokens are stateless, so there is
// nothing to revoke; the caller drops the cookie.
func (s *Service) Logout(_ context.Context, token string) {
	defer observe("logout", time.Now(), nil)

	if claims, status := s.tokens.Check(token); status == session.StatusValid {
		slog.Info("logout", "account_id", claims.AccountID)
		return
	}
	slog.Info("logout")
}

// CheckSession validates token and returns the account id it carries.
// Failures wrap ErrUnauthorized and tell missing tokens apart from bad ones.
func (s *Service) CheckSession(_ context.Context, token string) (accountID string, err error) {
	defer func(start time.Time) { observe("check_session", start, err) }(time.Now())

	claims, status := s.tokens.Check(token)
	switch status {
	case session.StatusValid:
		return claims.AccountID, nil
	case session.StatusNoToken:
		return "", ErrNoToken
	case session.StatusExpired:
		return "", ErrExpiredToken
	default:
		return "", ErrInvalidToken
	}
}

// GetAccount loads the account with the given id.
func (s *Service) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, storeError("get account", err)
	}
	return account, nil
}

// RequestPasswordReset puts a fresh reset code on the account and mails it.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer func(start time.Time) { observe("send_reset_otp", start, err) }(time.Now())

	if err := requireFields("email", email); err != nil {
		return err
	}

	return s.issueChallenge(ctx, models.PurposeReset, func(fn func(*models.Account) error) (*models.Account, error) {
		return s.store.UpdateAccountByEmail(ctx, email, fn)
	}, nil)
}

// ResetPassword redeems the reset code and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) (err error) {
	defer func(start time.Time) { observe("reset_password", start, err) }(time.Now())

	if err := requireFields("email", email, "otp", code, "newPassword", newPassword); err != nil {
		return err
	}

	// Unknown accounts and wrong codes fail here without a bcrypt round; the
	// locked update below checks the code again.
	current, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return storeError("reset password", err)
	}
	if err := s.redeem(models.PurposeReset, code, nil)(current); err != nil {
		return err
	}

	// Hash outside the transaction so the row lock stays short.
	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	account, err := s.store.UpdateAccountByEmail(ctx, email, s.redeem(models.PurposeReset, code, func(a *models.Account) {
		a.PasswordHash = hash
	}))
	if err != nil {
		return storeError("reset password", err)
	}

	slog.Info("password_reset", "account_id", account.ID)
	return nil
}

// RequestEmailVerification mails a verification code to an unverified account.
func (s *Service) RequestEmailVerification(ctx context.Context, accountID string) (err error) {
	defer func(start time.Time) { observe("send_verify_otp", start, err) }(time.Now())

	if err := requireFields("userId", accountID); err != nil {
		return err
	}

	return s.issueChallenge(ctx, models.PurposeVerify, func(fn func(*models.Account) error) (*models.Account, error) {
		return s.store.UpdateAccount(ctx, accountID, fn)
	}, func(a *models.Account) error {
		if a.IsVerified {
			return ErrAlreadyVerified
		}
		return nil
	})
}

// VerifyEmail redeems the verification code and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, accountID, code string) (err error) {
	defer func(start time.Time) { observe("verify_email", start, err) }(time.Now())

	if err := requireFields("userId", accountID, "otp", code); err != nil {
		return err
	}

	_, err = s.store.UpdateAccount(ctx, accountID, s.redeem(models.PurposeVerify, code, func(a *models.Account) {
		a.IsVerified = true
	}))
	if err != nil {
		return storeError("verify email", err)
	}

	slog.Info("email_verified", "account_id", accountID)
	return nil
}

// RequestAccountDeletion mails a deletion code. email must be the address of
// the signed-in account; anything else is reported as not found.
func (s *Service) RequestAccountDeletion(ctx context.Context, accountID, email string) (err error) {
	defer func(start time.Time) { observe("send_delete_otp", start, err) }(time.Now())

	if err := requireFields("userId", accountID, "email", email); err != nil {
		return err
	}
	normalized := repository.NormalizeEmail(email)

	return s.issueChallenge(ctx, models.PurposeDelete, func(fn func(*models.Account) error) (*models.Account, error) {
		return s.store.UpdateAccount(ctx, accountID, fn)
	}, func(a *models.Account) error {
		if a.Email != normalized {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteAccount redeems the deletion code and removes the account in the
// same transaction.
func (s *Service) DeleteAccount(ctx context.Context, accountID, code string) (err error) {
	defer func(start time.Time) { observe("delete_account", start, err) }(time.Now())

	if err := requireFields("userId", accountID, "otp", code); err != nil {
		return err
	}

	if err := s.store.DeleteAccount(ctx, accountID, s.redeem(models.PurposeDelete, code, nil)); err != nil {
		return storeError("delete account", err)
	}

	slog.Info("account_deleted", "account_id", accountID)
	return nil
}

// issueChallenge stores a new code in the purpose's slot, replacing any
// outstanding one, and mails it. guard may veto the issue.
func (s *Service) issueChallenge(
	ctx context.Context,
	purpose models.Purpose,
	update func(fn func(*models.Account) error) (*models.Account, error),
	guard func(*models.Account) error,
) error {
	code, err := s.codes.Generate()
	if err != nil {
		return internalError("generate otp", err)
	}

	account, err := update(func(a *models.Account) error {
		if guard != nil {
			if err := guard(a); err != nil {
				return err
			}
		}
		slot := a.Challenge(purpose)
		if slot == nil {
			return errUnknownChallenge
		}
		*slot = otp.NewChallenge(code, s.now())
		return nil
	})
	if err != nil {
		return storeError("issue otp", err)
	}

	slog.Info("otp_issued", "purpose", string(purpose), "account_id", account.ID)

	err = s.notify(ctx, string(purpose)+"_otp", account.Email, map[string]any{
		"Code":    code,
		"Email":   account.Email,
		"Minutes": int(otp.Validity.Minutes()),
	})
	if err != nil {
		return internalError("send otp", err)
	}
	return nil
}

// redeem returns an update step that consumes the purpose's code and then
// applies the dependent change. The slot is cleared before apply runs.
func (s *Service) redeem(purpose models.Purpose, code string, apply func(*models.Account)) func(*models.Account) error {
	return func(a *models.Account) error {
		slot := a.Challenge(purpose)
		if slot == nil {
			return errUnknownChallenge
		}
		if err := otp.Verify(*slot, strings.TrimSpace(code), s.now()); err != nil {
			slog.Info("otp_rejected", "purpose", string(purpose), "account_id", a.ID, "reason", err.Error())
			return err
		}
		*slot = models.Challenge{}
		if apply != nil {
			apply(a)
		}
		return nil
	}
}

func (s *Service) issueSession(accountID string) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(accountID)
	if err != nil {
		return nil, internalError("issue session", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) hashPassword(plaintext string) (string, error) {
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", internalError("hash password", err)
	}
	return hash, nil
}

// notify renders the localized mail kind and sends it.
func (s *Service) notify(ctx context.Context, kind, to string, data map[string]any) error {
	subject := i18n.T(ctx, kind+"_subject")
	body := i18n.TData(ctx, kind+"_body", data)

	if err := s.notifier.Send(ctx, to, subject, body); err != nil {
		metrics.RecordMailFailure(kind)
		slog.Error("notification_failed", "kind", kind, "error", err)
		return err
	}
	return nil
}

func parseEmail(raw string) (string, error) {
	email := repository.NormalizeEmail(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func storeError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrDuplicateEmail):
		return ErrDuplicateEmail
	case IsClientError(err):
		return err
	default:
		return internalError(op, err)
	}
}
