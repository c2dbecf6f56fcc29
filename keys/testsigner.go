package keys

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/btcl2/l2node/hash"
)

// TestSigner is a Signer with deterministic keys derived from locator names.
// Sign requests are recorded and individual locators can be made to fail.
type TestSigner struct {
	*Keyring

	mu       sync.Mutex
	failures map[Locator]error
	requests []SignRequest
}

// NewTestSigner derives a key for every locator from sha256(locator).
func NewTestSigner(locators ...Locator) *TestSigner {
	keys := make(map[Locator]*btcec.PrivateKey, len(locators))
	for _, loc := range locators {
		keys[loc] = TestKey(loc)
	}
	return &TestSigner{Keyring: NewKeyring(keys), failures: map[Locator]error{}}
}

// TestKey returns the deterministic private key used by NewTestSigner.
func TestKey(loc Locator) *btcec.PrivateKey {
	seed := hash.Sum([]byte(loc))
	priv, _ := btcec.PrivKeyFromBytes(seed[:])
	return priv
}

// TestAddress returns the BIP-86 address of TestKey(loc) encoded for net.
func TestAddress(loc Locator, net *chaincfg.Params) string {
	addr, err := KeyPathAddress(TestKey(loc).PubKey(), net)
	if err != nil {
		panic(err)
	}
	return addr.EncodeAddress()
}

// Fail makes every following Sign for loc return err. A nil err clears it.
func (s *TestSigner) Fail(loc Locator, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, loc)
		return
	}
	s.failures[loc] = err
}

// Requests returns a copy of the recorded sign requests.
func (s *TestSigner) Requests() []SignRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SignRequest(nil), s.requests...)
}

// Sign implements Signer.
func (s *TestSigner) Sign(ctx context.Context, req SignRequest) ([]byte, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	err := s.failures[req.Locator]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Keyring.Sign(ctx, req)
}
