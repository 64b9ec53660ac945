/*
Package sign wraps the kyber Schnorr signature scheme over edwards25519.
Authorities sign the digest of every block they produce and the block store
verifies the signature against the committee's public keys.
*/
package sign

import (
	"errors"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/util/key"
)

var suite = edwards25519.NewBlakeSHA256Ed25519()

// ErrEmptyKey is returned when decoding an empty key.
var ErrEmptyKey = errors.New("empty key")

// GenKeys generates a fresh key pair.
func GenKeys() (kyber.Scalar, kyber.Point) {
	pair := key.NewKeyPair(suite)
	return pair.Private, pair.Public
}

// Sign signs msg with the private key.
func Sign(privateKey kyber.Scalar, msg []byte) ([]byte, error) {
	return schnorr.Sign(suite, privateKey, msg)
}

// Verify checks sig against msg and the public key.
// A signature that does not verify is reported as (false, nil);
// errors are reserved for malformed input.
func Verify(publicKey kyber.Point, msg, sig []byte) (bool, error) {
	if publicKey == nil {
		return false, ErrEmptyKey
	}
	if len(sig) == 0 {
		return false, nil
	}
	if err := schnorr.Verify(suite, publicKey, msg, sig); err != nil {
		return false, nil
	}
	return true, nil
}

func EncodePublicKey(publicKey kyber.Point) ([]byte, error) {
	return publicKey.MarshalBinary()
}

func DecodePublicKey(data []byte) (kyber.Point, error) {
	if len(data) == 0 {
		return nil, ErrEmptyKey
	}
	point := suite.Point()
	if err := point.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return point, nil
}

func EncodePrivateKey(privateKey kyber.Scalar) ([]byte, error) {
	return privateKey.MarshalBinary()
}

func DecodePrivateKey(data []byte) (kyber.Scalar, error) {
	if len(data) == 0 {
		return nil, ErrEmptyKey
	}
	scalar := suite.Scalar()
	if err := scalar.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return scalar, nil
}

// PublicKeyOf derives the public key of a private key.
func PublicKeyOf(privateKey kyber.Scalar) kyber.Point {
	return suite.Point().Mul(privateKey, nil)
}
