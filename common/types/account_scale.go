package types

import (
	"math/big"

	"github.com/spacemeshos/go-scale"
)

const (
	// maxAmountBytes bounds the big-endian encoding of an amount.
	maxAmountBytes = 64
	// maxIDBytes bounds encoded account ids and transaction types.
	maxIDBytes = 128
)

// EncodeAmount writes a non-negative amount as a length prefixed big-endian
// byte string.
func EncodeAmount(enc *scale.Encoder, v *big.Int) (int, error) {
	return scale.EncodeByteSliceWithLimit(enc, CopyAmount(v).Bytes(), maxAmountBytes)
}

// DecodeAmount reads an amount written by EncodeAmount.
func DecodeAmount(dec *scale.Decoder) (*big.Int, int, error) {
	b, n, err := scale.DecodeByteSliceWithLimit(dec, maxAmountBytes)
	if err != nil {
		return nil, n, err
	}
	return new(big.Int).SetBytes(b), n, nil
}

// EncodeText writes a short identifier.
func EncodeText(enc *scale.Encoder, s string) (int, error) {
	return scale.EncodeByteSliceWithLimit(enc, []byte(s), maxIDBytes)
}

// DecodeText reads an identifier written by EncodeText.
func DecodeText(dec *scale.Decoder) (string, int, error) {
	b, n, err := scale.DecodeByteSliceWithLimit(dec, maxIDBytes)
	if err != nil {
		return "", n, err
	}
	return string(b), n, nil
}

// EncodeScale implements scale codec interface.
func (s *AccountState) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := EncodeText(enc, string(s.ID))
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := EncodeAmount(enc, s.Balance)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := EncodeAmount(enc, s.Staked)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeCompact64(enc, s.Nonce)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DecodeScale implements scale codec interface.
func (s *AccountState) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		field, n, err := DecodeText(dec)
		if err != nil {
			return total, err
		}
		total += n
		s.ID = AccountID(field)
	}
	{
		field, n, err := DecodeAmount(dec)
		if err != nil {
			return total, err
		}
		total += n
		s.Balance = field
	}
	{
		field, n, err := DecodeAmount(dec)
		if err != nil {
			return total, err
		}
		total += n
		s.Staked = field
	}
	{
		field, n, err := scale.DecodeCompact64(dec)
		if err != nil {
			return total, err
		}
		total += n
		s.Nonce = field
	}
	return total, nil
}
