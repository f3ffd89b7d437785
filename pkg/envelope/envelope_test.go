package envelope

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	passphrase := []byte("correct horse battery staple")
	plaintext := []byte(`{"key":"sk-test-12345"}`)

	env, err := Seal(passphrase, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	got, err := Open(passphrase, env, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("Open = %q, want %q", got, plaintext)
	}
}

func TestSeal_DistinctCiphertextsForSamePlaintext(t *testing.T) {
	passphrase := []byte("same-passphrase")
	plaintext := []byte("identical-secret")

	a, err := Seal(passphrase, plaintext)
	if err != nil {
		t.Fatalf("Seal a: %v", err)
	}
	b, err := Seal(passphrase, plaintext)
	if err != nil {
		t.Fatalf("Seal b: %v", err)
	}

	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Error("nonces must differ per seal")
	}
	if bytes.Equal(a.KDFParams.Salt, b.KDFParams.Salt) {
		t.Error("salts must differ per seal")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Error("ciphertexts must differ for identical plaintext under the same passphrase")
	}
}

func TestOpen_WrongPassphraseBeforeProbeCheck(t *testing.T) {
	env, err := Seal([]byte("right-passphrase"), []byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	_, err = Open([]byte("wrong-passphrase"), env, false)
	if err != ErrWrongKey {
		t.Fatalf("Open with wrong passphrase = %v, want ErrWrongKey", err)
	}
}

func TestOpen_CorruptAfterProbeChecked(t *testing.T) {
	passphrase := []byte("right-passphrase")
	env, err := Seal(passphrase, []byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Damage the tag so GCM authentication fails even with the right key.
	env.Tag[0] ^= 0xFF

	_, err = Open(passphrase, env, true)
	if err != ErrCorrupt {
		t.Fatalf("Open damaged envelope with probeChecked=true = %v, want ErrCorrupt", err)
	}
}

func TestVerifyProbe(t *testing.T) {
	passphrase := []byte("the-master-passphrase")
	const probe = "credential-vault-master-key-probe-v1"

	env, err := Seal(passphrase, []byte(probe))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if err := VerifyProbe(passphrase, env, probe); err != nil {
		t.Fatalf("VerifyProbe with correct passphrase: %v", err)
	}
	if err := VerifyProbe([]byte("not-it"), env, probe); err != ErrWrongKey {
		t.Fatalf("VerifyProbe with wrong passphrase = %v, want ErrWrongKey", err)
	}
}

// TestSealOpen_RoundTripProperty checks the law from spec §8:
// seal(k, open(k, e)) round-trips to the same plaintext for any byte string,
// regardless of contents or length.
func TestSealOpen_RoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("seal then open recovers the original plaintext", prop.ForAll(
		func(passphrase string, plaintext []byte) bool {
			if passphrase == "" {
				passphrase = "fallback-passphrase"
			}
			env, err := Seal([]byte(passphrase), plaintext)
			if err != nil {
				return false
			}
			got, err := Open([]byte(passphrase), env, false)
			if err != nil {
				return false
			}
			return bytes.Equal(got, plaintext)
		},
		gen.AnyString(),
		gen.SliceOf(gen.UInt8Range(0, 255)),
	))

	properties.TestingRun(t)
}
