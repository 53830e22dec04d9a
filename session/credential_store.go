package session

import (
	"context"
	"errors"

	"github.com/jrsteele09/twill/credentials"
	apperrors "github.com/jrsteele09/twill/internal/errors"
)

// CredentialStore keeps the caller's credential inside their own session cookie.
// The identity is the session id; the session must be in the context. A stored
// credential belongs to the LMS user of the launch it was saved under and is
// not returned once the session carries another user's launch.
type CredentialStore struct {
	cipher *credentials.Cipher
}

var _ credentials.Store = (*CredentialStore)(nil)

// NewCredentialStore returns a session-backed store. A non-nil cipher seals the
// tokens inside the cookie.
func NewCredentialStore(cipher *credentials.Cipher) *CredentialStore {
	return &CredentialStore{cipher: cipher}
}

func (s *CredentialStore) KeyedBy() credentials.Keying {
	return credentials.KeyedBySession
}

func (s *CredentialStore) Load(ctx context.Context, identity string) (*credentials.Credential, error) {
	sess, ok := FromContext(ctx)
	if !ok {
		return nil, errors.New("no session in context")
	}
	if sess.ID != identity || sess.Credential == nil {
		return nil, apperrors.ErrCredentialNotFound
	}
	if sess.Launch == nil || sess.Credential.ExternalUserID != sess.Launch.ExternalUserID {
		return nil, apperrors.ErrCredentialNotFound
	}

	cred := *sess.Credential
	var err error
	if cred.AccessToken, err = s.cipher.Open(cred.AccessToken); err != nil {
		return nil, apperrors.Wrapf(err, "unsealing access token")
	}
	if cred.RefreshToken, err = s.cipher.Open(cred.RefreshToken); err != nil {
		return nil, apperrors.Wrapf(err, "unsealing refresh token")
	}
	return &cred, nil
}

func (s *CredentialStore) Save(ctx context.Context, identity string, cred *credentials.Credential) error {
	sess, ok := FromContext(ctx)
	if !ok {
		return errors.New("no session in context")
	}
	if sess.ID != identity {
		return apperrors.Wrapf(apperrors.ErrSessionInvalid, "identity does not match session")
	}
	if cred == nil {
		return errors.New("credential cannot be nil")
	}
	if sess.Launch == nil {
		return apperrors.Wrapf(apperrors.ErrSessionInvalid, "no launch in session")
	}

	sealed := *cred
	sealed.ExternalUserID = sess.Launch.ExternalUserID
	var err error
	if sealed.AccessToken, err = s.cipher.Seal(cred.AccessToken); err != nil {
		return apperrors.Wrapf(err, "sealing access token")
	}
	if sealed.RefreshToken, err = s.cipher.Seal(cred.RefreshToken); err != nil {
		return apperrors.Wrapf(err, "sealing refresh token")
	}
	sess.setCredential(&sealed)
	return nil
}
