package remote

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/ssh"
)

// Credential is either a PasswordCredential or a KeyCredential.
type Credential interface {
	credentialKind() string
}

type PasswordCredential struct {
	Password string
}

func (PasswordCredential) credentialKind() string { return "password" }

// KeyCredential holds PEM encoded private key material. Passphrase is only
// used for encrypted keys.
type KeyCredential struct {
	PrivateKey []byte
	Passphrase []byte
}

func (KeyCredential) credentialKind() string { return "private_key" }

// CredentialKind names the credential variant for logs.
func CredentialKind(c Credential) string {
	if c == nil {
		return "none"
	}
	return c.credentialKind()
}

func authMethod(c Credential) (ssh.AuthMethod, error) {
	switch cred := c.(type) {
	case PasswordCredential:
		if cred.Password == "" {
			return nil, errors.New("ssh password is empty")
		}
		return ssh.Password(cred.Password), nil
	case KeyCredential:
		signer, err := parseSigner(cred)
		if err != nil {
			return nil, err
		}
		return ssh.PublicKeys(signer), nil
	case nil:
		return nil, errors.New("ssh credential is required")
	default:
		return nil, errors.Newf("unsupported ssh credential %T", c)
	}
}

func parseSigner(cred KeyCredential) (ssh.Signer, error) {
	if len(cred.PrivateKey) == 0 {
		return nil, errors.New("ssh private key is empty")
	}
	if len(cred.Passphrase) > 0 {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(cred.PrivateKey, cred.Passphrase)
		if err != nil {
			return nil, errors.Wrap(err, "parse ssh private key")
		}
		return signer, nil
	}
	signer, err := ssh.ParsePrivateKey(cred.PrivateKey)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.New("ssh private key is encrypted and no passphrase was provided")
		}
		return nil, errors.Wrap(err, "parse ssh private key")
	}
	return signer, nil
}
