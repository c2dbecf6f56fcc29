package keys

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"
	"golang.org/x/crypto/scrypt"

	"github.com/btcl2/l2node/hash"
)

const (
	keyfileVersion = 1
	keyfileExt     = ".json"
	cipherName     = "aes-128-ctr"
	kdfName        = "scrypt"

	// StandardScryptN is the work factor for production keys.
	StandardScryptN = 1 << 18
	// StandardScryptP is the parallelization factor for production keys.
	StandardScryptP = 1
	// LightScryptN is a cheap work factor for tests.
	LightScryptN = 1 << 12
	// LightScryptP is the parallelization factor paired with LightScryptN.
	LightScryptP = 6

	scryptR     = 8
	scryptDKLen = 32
)

var (
	// ErrDecrypt is returned when the passphrase does not match the key file.
	ErrDecrypt = errors.New("keys: could not decrypt key with given passphrase")
	// ErrKeyExists is returned by Store when a key file for the locator already exists.
	ErrKeyExists = errors.New("keys: key already exists")

	validLocator = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

type kdfParams struct {
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	DKLen int    `json:"dklen"`
	Salt  string `json:"salt"`
}

type cryptoJSON struct {
	Cipher     string    `json:"cipher"`
	CipherText string    `json:"ciphertext"`
	IV         string    `json:"iv"`
	KDF        string    `json:"kdf"`
	KDFParams  kdfParams `json:"kdfparams"`
	MAC        string    `json:"mac"`
}

type keyfile struct {
	ID      string     `json:"id"`
	UUID    string     `json:"uuid"`
	XOnly   string     `json:"pubkey"`
	Crypto  cryptoJSON `json:"crypto"`
	Version int        `json:"version"`
}

// KeystoreOpt configures Keystore.
type KeystoreOpt func(*Keystore)

// WithScrypt overrides the scrypt work factors.
func WithScrypt(n, p int) KeystoreOpt {
	return func(ks *Keystore) {
		ks.scryptN = n
		ks.scryptP = p
	}
}

// WithLogger sets the logger. Only locators and public keys are logged.
func WithLogger(logger *zap.Logger) KeystoreOpt {
	return func(ks *Keystore) {
		ks.logger = logger
	}
}

// Keystore stores scrypt encrypted validator keys, one file per locator.
type Keystore struct {
	dir     string
	scryptN int
	scryptP int
	logger  *zap.Logger
}

// NewKeystore opens (and creates) the key directory.
func NewKeystore(dir string, opts ...KeystoreOpt) (*Keystore, error) {
	ks := &Keystore{
		dir:     dir,
		scryptN: StandardScryptN,
		scryptP: StandardScryptP,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ks)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key dir %s: %w", dir, err)
	}
	return ks, nil
}

func (ks *Keystore) path(loc Locator) string {
	return filepath.Join(ks.dir, string(loc)+keyfileExt)
}

// Generate creates a fresh key for loc and stores it.
func (ks *Keystore) Generate(loc Locator, passphrase string) (*btcec.PublicKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := ks.Store(loc, priv, passphrase); err != nil {
		return nil, err
	}
	return priv.PubKey(), nil
}

// Store encrypts priv with passphrase and writes it atomically.
func (ks *Keystore) Store(loc Locator, priv *btcec.PrivateKey, passphrase string) error {
	if !validLocator.MatchString(string(loc)) {
		return fmt.Errorf("invalid key locator %q", loc)
	}
	path := ks.path(loc)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrKeyExists, loc)
	}
	data, err := encryptKey(loc, priv, passphrase, ks.scryptN, ks.scryptP)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write key file %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("chmod key file %s: %w", path, err)
	}
	ks.logger.Info("stored validator key",
		zap.String("locator", string(loc)),
		zap.String("pubkey", hex.EncodeToString(XOnly(priv.PubKey()))),
	)
	return nil
}

// Load decrypts the key stored for loc.
func (ks *Keystore) Load(loc Locator, passphrase string) (*btcec.PrivateKey, error) {
	data, err := os.ReadFile(ks.path(loc))
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", loc, err)
	}
	return decryptKey(loc, data, passphrase)
}

// PublicKey reads the public key of loc without decrypting the file.
func (ks *Keystore) PublicKey(loc Locator) ([]byte, error) {
	data, err := os.ReadFile(ks.path(loc))
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", loc, err)
	}
	var kf keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("decode key %s: %w", loc, err)
	}
	return hex.DecodeString(kf.XOnly)
}

// List returns the stored locators in sorted order.
func (ks *Keystore) List() ([]Locator, error) {
	matches, err := filepath.Glob(filepath.Join(ks.dir, "*"+keyfileExt))
	if err != nil {
		return nil, err
	}
	rst := make([]Locator, 0, len(matches))
	for _, m := range matches {
		rst = append(rst, Locator(strings.TrimSuffix(filepath.Base(m), keyfileExt)))
	}
	sort.Slice(rst, func(i, j int) bool { return rst[i] < rst[j] })
	return rst, nil
}

// Keyring decrypts every listed locator with passphrase.
func (ks *Keystore) Keyring(passphrase string, locators ...Locator) (*Keyring, error) {
	keys := make(map[Locator]*btcec.PrivateKey, len(locators))
	for _, loc := range locators {
		priv, err := ks.Load(loc, passphrase)
		if err != nil {
			return nil, err
		}
		keys[loc] = priv
	}
	kr := NewKeyring(keys)
	ks.logger.Info("loaded validator keys", zap.Object("keys", kr))
	return kr, nil
}

func mac(derived, cipherText []byte) []byte {
	sum := hash.Sum256(derived[16:32], cipherText)
	return sum[:]
}

func encryptKey(loc Locator, priv *btcec.PrivateKey, passphrase string, scryptN, scryptP int) ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	derived, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("read iv: %w", err)
	}
	cipherText, err := aesCTRXOR(derived[:16], priv.Serialize(), iv)
	if err != nil {
		return nil, err
	}
	return json.Marshal(keyfile{
		ID:    string(loc),
		UUID:  uuid.NewString(),
		XOnly: hex.EncodeToString(XOnly(priv.PubKey())),
		Crypto: cryptoJSON{
			Cipher:     cipherName,
			CipherText: hex.EncodeToString(cipherText),
			IV:         hex.EncodeToString(iv),
			KDF:        kdfName,
			KDFParams: kdfParams{
				N:     scryptN,
				R:     scryptR,
				P:     scryptP,
				DKLen: scryptDKLen,
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(mac(derived, cipherText)),
		},
		Version: keyfileVersion,
	})
}

func decryptKey(loc Locator, data []byte, passphrase string) (*btcec.PrivateKey, error) {
	var kf keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("decode key %s: %w", loc, err)
	}
	if kf.Version != keyfileVersion {
		return nil, fmt.Errorf("key %s: version %d not supported", loc, kf.Version)
	}
	if kf.Crypto.Cipher != cipherName || kf.Crypto.KDF != kdfName {
		return nil, fmt.Errorf("key %s: unsupported cipher %s/%s", loc, kf.Crypto.Cipher, kf.Crypto.KDF)
	}
	salt, err := hex.DecodeString(kf.Crypto.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("key %s: salt: %w", loc, err)
	}
	iv, err := hex.DecodeString(kf.Crypto.IV)
	if err != nil {
		return nil, fmt.Errorf("key %s: iv: %w", loc, err)
	}
	cipherText, err := hex.DecodeString(kf.Crypto.CipherText)
	if err != nil {
		return nil, fmt.Errorf("key %s: ciphertext: %w", loc, err)
	}
	expected, err := hex.DecodeString(kf.Crypto.MAC)
	if err != nil {
		return nil, fmt.Errorf("key %s: mac: %w", loc, err)
	}
	p := kf.Crypto.KDFParams
	derived, err := scrypt.Key([]byte(passphrase), salt, p.N, p.R, p.P, p.DKLen)
	if err != nil {
		return nil, fmt.Errorf("key %s: derive: %w", loc, err)
	}
	if !bytes.Equal(mac(derived, cipherText), expected) {
		return nil, ErrDecrypt
	}
	plain, err := aesCTRXOR(derived[:16], cipherText, iv)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(plain)
	if hex.EncodeToString(XOnly(priv.PubKey())) != kf.XOnly {
		return nil, fmt.Errorf("key %s: public key mismatch", loc)
	}
	return priv, nil
}

func aesCTRXOR(key, in, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(in))
	stream.XORKeyStream(out, in)
	return out, nil
}
