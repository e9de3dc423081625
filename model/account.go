package model

// Account is the per-address balance and nonce record. Accounts are never
// destroyed; zero-balance accounts remain.
type Account struct {
	Balance uint64 `cbor:"1,keyasint"`
	Nonce   uint64 `cbor:"2,keyasint"`
}

// Serialize encodes the account canonically.
func (a *Account) Serialize() ([]byte, error) {
	return MarshalCanonical(a)
}

// DeserializeAccount decodes an account.
func DeserializeAccount(data []byte) (*Account, error) {
	var a Account
	if err := UnmarshalCanonical(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
