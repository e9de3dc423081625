package zk

import (
	"bytes"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/steake/bitcell/errors"
)

// Prover wraps one compiled circuit with its Groth16 keys. Setup is the
// trusted ceremony stand-in for development; production nodes load
// ceremony keys from disk (see keys.go) instead.
type Prover struct {
	mu sync.RWMutex

	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey

	initialized bool
}

// NewProver returns an empty prover; call Setup or LoadKeys before use.
func NewProver() *Prover {
	return &Prover{}
}

// Setup compiles the circuit and runs the Groth16 setup. The circuit shell
// fixes the calibration (grid size, steps, Merkle depth); the verifier key
// is tied to it.
func (p *Prover) Setup(circuit frontend.Circuit) error {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return errors.NewProofSetupError("circuit compilation failed", err)
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return errors.NewProofSetupError("groth16 setup failed", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.ccs = ccs
	p.pk = pk
	p.vk = vk
	p.initialized = true

	return nil
}

// Initialized reports whether keys are present.
func (p *Prover) Initialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.initialized
}

// Prove generates a serialized Groth16 proof for a fully assigned circuit.
// Proving is CPU-bound and must run on the worker pool, never on a
// scheduler suspension point.
func (p *Prover) Prove(assignment frontend.Circuit) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.initialized {
		return nil, errors.NewProofGenerationError("prover not initialized")
	}

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, errors.NewProofGenerationError("witness construction failed", err)
	}

	proof, err := groth16.Prove(p.ccs, p.pk, witness)
	if err != nil {
		return nil, errors.NewProofGenerationError("proof generation failed", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, errors.NewProofGenerationError("proof serialization failed", err)
	}
	return buf.Bytes(), nil
}

// Verify checks a serialized proof against the public assignment. Returns
// false (not an error) on a sound but failing proof.
func (p *Prover) Verify(proofBytes []byte, publicAssignment frontend.Circuit) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.initialized {
		return false, errors.NewProofVerificationError("verifier not initialized")
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, errors.NewProofVerificationError("proof deserialization failed", err)
	}

	witness, err := frontend.NewWitness(publicAssignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, errors.NewProofVerificationError("public witness construction failed", err)
	}

	if err := groth16.Verify(proof, p.vk, witness); err != nil {
		return false, nil
	}
	return true, nil
}

// Keys returns the proving and verifying keys for export.
func (p *Prover) Keys() (groth16.ProvingKey, groth16.VerifyingKey) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.pk, p.vk
}

// SetKeys installs keys loaded from disk together with the compiled
// circuit.
func (p *Prover) SetKeys(circuit frontend.Circuit, pk groth16.ProvingKey, vk groth16.VerifyingKey) error {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return errors.NewProofSetupError("circuit compilation failed", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.ccs = ccs
	p.pk = pk
	p.vk = vk
	p.initialized = true

	return nil
}
