// Package sign produces and checks armored detached OpenPGP signatures of
// rendered documents.
package sign

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"

	"github.com/exploopio/sbomkit/pkg/errors"
)

// Signer signs with one private key.
type Signer struct {
	entity *openpgp.Entity
}

// LoadSigner reads an armored or binary private key from keyFile and
// unlocks it with passphrase when it is encrypted. The first key in the
// file is used.
func LoadSigner(keyFile string, passphrase []byte) (*Signer, error) {
	const op = "sign.LoadSigner"
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, errors.E(errors.KindNotFound, op, err)
	}
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		entities, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, errors.E(errors.KindInvalidInput, op, "read key", err)
		}
	}
	if len(entities) == 0 {
		return nil, errors.E(errors.KindInvalidInput, op, "no keys found in "+keyFile)
	}
	return NewSigner(entities[0], passphrase)
}

// NewSigner wraps an entity that carries a private key.
func NewSigner(entity *openpgp.Entity, passphrase []byte) (*Signer, error) {
	const op = "sign.NewSigner"
	if entity.PrivateKey == nil {
		return nil, errors.E(errors.KindInvalidInput, op, "key has no private part")
	}
	if entity.PrivateKey.Encrypted {
		if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
			return nil, errors.E(errors.KindInvalidInput, op, "unlock key", err)
		}
	}
	for _, sk := range entity.Subkeys {
		if sk.PrivateKey != nil && sk.PrivateKey.Encrypted {
			if err := sk.PrivateKey.Decrypt(passphrase); err != nil {
				return nil, errors.E(errors.KindInvalidInput, op, "unlock subkey", err)
			}
		}
	}
	return &Signer{entity: entity}, nil
}

// Fingerprint returns the primary key fingerprint in upper-case hex.
func (s *Signer) Fingerprint() string {
	return fmt.Sprintf("%X", s.entity.PrimaryKey.Fingerprint)
}

// SignDetached returns an armored detached signature of data.
func (s *Signer) SignDetached(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, s.entity, bytes.NewReader(data), nil); err != nil {
		return nil, errors.E(errors.KindInternal, "sign.SignDetached", err)
	}
	return buf.Bytes(), nil
}

// PublicKey returns the armored public key, for publishing next to
// signatures.
func (s *Signer) PublicKey() ([]byte, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := s.entity.Serialize(w); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Verify checks an armored detached signature of data against keyring and
// returns the signing entity.
func Verify(keyring openpgp.EntityList, data, sig []byte) (*openpgp.Entity, error) {
	signer, err := openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(sig), nil)
	if err != nil {
		return nil, errors.E(errors.KindContent, "sign.Verify", err)
	}
	return signer, nil
}

// ReadKeyring reads an armored public keyring.
func ReadKeyring(armored []byte) (openpgp.EntityList, error) {
	keys, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armored))
	if err != nil {
		return nil, errors.E(errors.KindInvalidInput, "sign.ReadKeyring", err)
	}
	return keys, nil
}
