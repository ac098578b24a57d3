package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/templui/accounts/internal/model"
	"golang.org/x/crypto/bcrypt"
)

const saltBytes = 16

// CredentialService hashes and verifies salted passwords. The cost is
// injectable so tests can run at bcrypt.MinCost.
type CredentialService struct {
	cost int

	dummyOnce sync.Once
	dummy     *model.Credential
}

func NewCredentialService(cost int) *CredentialService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialService{cost: cost}
}

// Hash derives a credential from password with a fresh random salt.
func (s *CredentialService) Hash(password string) (*model.Credential, error) {
	raw := make([]byte, saltBytes)
	_, err := rand.Read(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword(prehash(salt, password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &model.Credential{Hash: string(hash), Salt: salt}, nil
}

// Verify reports whether password matches credential. A nil credential or an
// empty password never matches.
func (s *CredentialService) Verify(password string, credential *model.Credential) bool {
	if credential == nil || credential.Hash == "" || password == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(credential.Hash), prehash(credential.Salt, password))
	return err == nil
}

// prehash folds salt||password into a 44-byte digest so bcrypt's 72-byte
// input limit never truncates or refuses a password.
func prehash(salt, password string) []byte {
	sum := sha256.Sum256([]byte(salt + password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

// verifyDummy burns the same time as a real verification so unknown
// accounts are not told apart by latency.
func (s *CredentialService) verifyDummy(password string) {
	s.dummyOnce.Do(func() {
		cred, err := s.Hash("dummy-Password-1")
		if err == nil {
			s.dummy = cred
		}
	})
	if s.dummy != nil {
		s.Verify(password+"x", s.dummy)
	}
}
