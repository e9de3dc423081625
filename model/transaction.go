package model

import (
	"github.com/steake/bitcell/errors"
)

// Gas limits for simple transfers. Consumption is flat: every transfer
// costs FlatGasPerTransfer, and fee = gas_price * FlatGasPerTransfer.
const (
	FlatGasPerTransfer = 21000
	MaxGasPrice        = 1 << 40
	MaxGasLimit        = 1 << 24
)

// Transaction is a signed value transfer between two accounts.
type Transaction struct {
	From      PublicKey `cbor:"1,keyasint"`
	To        PublicKey `cbor:"2,keyasint"`
	Amount    uint64    `cbor:"3,keyasint"`
	Nonce     uint64    `cbor:"4,keyasint"`
	GasPrice  uint64    `cbor:"5,keyasint"`
	GasLimit  uint64    `cbor:"6,keyasint"`
	Data      []byte    `cbor:"7,keyasint,omitempty"`
	Signature Signature `cbor:"8,keyasint"`
}

// txSigningPayload is the canonical signed payload: every field except the
// signature itself.
type txSigningPayload struct {
	From     PublicKey `cbor:"1,keyasint"`
	To       PublicKey `cbor:"2,keyasint"`
	Amount   uint64    `cbor:"3,keyasint"`
	Nonce    uint64    `cbor:"4,keyasint"`
	GasPrice uint64    `cbor:"5,keyasint"`
	GasLimit uint64    `cbor:"6,keyasint"`
	Data     []byte    `cbor:"7,keyasint,omitempty"`
}

// SigningHash returns the canonical hash the sender signs.
func (tx *Transaction) SigningHash() Hash256 {
	payload, err := MarshalCanonical(&txSigningPayload{
		From:     tx.From,
		To:       tx.To,
		Amount:   tx.Amount,
		Nonce:    tx.Nonce,
		GasPrice: tx.GasPrice,
		GasLimit: tx.GasLimit,
		Data:     tx.Data,
	})
	if err != nil {
		// Canonical encoding of a fixed struct cannot fail.
		panic(err)
	}
	return NewHash256(payload)
}

// Hash returns the transaction hash, deterministic over the signed payload.
func (tx *Transaction) Hash() Hash256 {
	return tx.SigningHash()
}

// Fee returns the flat fee charged on top of the transferred amount.
func (tx *Transaction) Fee() uint64 {
	return tx.GasPrice * FlatGasPerTransfer
}

// SignTransaction fills in the signature using the sender's key.
func SignTransaction(tx *Transaction, sk *SecretKey) {
	h := tx.SigningHash()
	tx.Signature = sk.Sign(h.Bytes())
}

// VerifySignature checks the signature against the From key.
func (tx *Transaction) VerifySignature() error {
	h := tx.SigningHash()
	if !tx.From.Verify(h.Bytes(), tx.Signature) {
		return errors.NewTxInvalidError("invalid transaction signature")
	}
	return nil
}

// Serialize encodes the transaction canonically.
func (tx *Transaction) Serialize() ([]byte, error) {
	return MarshalCanonical(tx)
}

// DeserializeTransaction decodes a transaction.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := UnmarshalCanonical(data, &tx); err != nil {
		return nil, errors.NewTxInvalidError("transaction decode failed", err)
	}
	return &tx, nil
}
