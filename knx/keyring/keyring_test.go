package keyring

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/pbkdf2"

	"github.com/nerrad567/calimero/internal/config"
	"github.com/nerrad567/calimero/knx"
)

type fakeLogger struct {
	warnings []string
}

func (f *fakeLogger) Debug(string, ...any) {}
func (f *fakeLogger) Info(string, ...any)  {}
func (f *fakeLogger) Warn(msg string, args ...any) {
	f.warnings = append(f.warnings, msg)
}
func (f *fakeLogger) Error(string, ...any) {}

func aesCBCEncrypt(t *testing.T, key, iv, plain []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return out
}

func TestVerifySignatureMismatch(t *testing.T) {
	data := []byte(`<Keyring xmlns="http://knx.org/xml/keyring/1" Project="P" Created="t" Signature="x"/>`)
	err := verifySignature(data, []byte("not-the-real-hash"), make([]byte, 16))
	if !errors.Is(err, knx.ErrSecure) {
		t.Fatalf("expected ErrSecure, got %v", err)
	}
}

func TestCanonicalStreamExcludesSignatureAndXmlns(t *testing.T) {
	data := []byte(`<Keyring xmlns="http://knx.org/xml/keyring/1" Project="P" Signature="deadbeef"></Keyring>`)
	stream, err := canonicalStream(data)
	if err != nil {
		t.Fatalf("canonicalStream: %v", err)
	}
	out := stream.Bytes()
	if bytes.Contains(out, []byte("deadbeef")) {
		t.Fatal("Signature attribute value leaked into the canonical stream")
	}
	if !bytes.Contains(out, []byte("Project")) {
		t.Fatal("expected the Project attribute name in the canonical stream")
	}
}

func buildDoc(t *testing.T, created, signatureB64, groupAddr string, groupKeyCipher []byte, devSeqHex string) string {
	t.Helper()
	return fmt.Sprintf(`<Keyring xmlns="http://knx.org/xml/keyring/1" Project="demo" CreatedBy="ETS6" Created="%s" Signature="%s">
  <Backbone MulticastAddress="224.0.23.12" Key="%s"/>
  <Interface Type="Tunneling" Host="1.1.1" IndividualAddress="1.1.100" UserID="2">
    <Group Address="%s" Senders="1.1.2 1.1.3"/>
  </Interface>
  <Devices>
    <Device IndividualAddress="1.1.2" SequenceNumber="%s"/>
  </Devices>
  <GroupAddresses>
    <Group Address="%s" Key="%s"/>
  </GroupAddresses>
</Keyring>`,
		created, signatureB64,
		base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 16)),
		groupAddr, devSeqHex, groupAddr, base64.StdEncoding.EncodeToString(groupKeyCipher))
}

func TestLoadSignatureMismatchStrict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.knxkeys")

	doc := buildDoc(t, "2024-01-01T00:00:00", base64.StdEncoding.EncodeToString(make([]byte, 16)),
		"1/1/1", bytes.Repeat([]byte{0x01}, 16), hex.EncodeToString(make([]byte, 6)))
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := config.KeyringConfig{Path: path, Password: "correct horse battery staple", Strict: true}
	_, err := Load(context.Background(), cfg, nil)
	if !errors.Is(err, knx.ErrSecure) {
		t.Fatalf("expected ErrSecure on mismatched signature, got %v", err)
	}
}

func TestLoadSignatureMismatchNonStrict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.knxkeys")

	doc := buildDoc(t, "2024-01-01T00:00:00", base64.StdEncoding.EncodeToString(make([]byte, 16)),
		"1/1/1", bytes.Repeat([]byte{0x01}, 16), hex.EncodeToString(make([]byte, 6)))
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	logger := &fakeLogger{}
	cfg := config.KeyringConfig{Path: path, Password: "correct horse battery staple", Strict: false}
	k, err := Load(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k == nil {
		t.Fatal("expected a non-nil keyring in non-strict mode")
	}
	if len(logger.warnings) == 0 {
		t.Fatal("expected a warning to be logged for the mismatched signature")
	}
}

func TestLoadIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.knxkeys")

	const created = "2024-06-15T12:00:00"
	const password = "idempotence-check"

	createdSum := sha256.Sum256([]byte(created))
	createdHash := createdSum[:16]
	passwordHash := pbkdf2.Key([]byte(password), []byte(pbkdfSalt), pbkdfIterations, pbkdfKeyLen, sha256.New)

	plainGroupKey := bytes.Repeat([]byte{0xAB}, 16)
	cipherGroupKey := aesCBCEncrypt(t, passwordHash, createdHash, plainGroupKey)

	doc := buildDoc(t, created, base64.StdEncoding.EncodeToString(make([]byte, 16)),
		"2/2/2", cipherGroupKey, hex.EncodeToString(make([]byte, 6)))
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := config.KeyringConfig{Path: path, Password: password, Strict: false}

	k1, err := Load(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	k2, err := Load(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}

	ga, err := knx.ParseGroupAddr("2/2/2")
	if err != nil {
		t.Fatalf("ParseGroupAddr: %v", err)
	}

	d1, err := k1.DecryptKey(password, k1.GroupKeys[ga])
	if err != nil {
		t.Fatalf("decrypt from first load: %v", err)
	}
	d2, err := k2.DecryptKey(password, k2.GroupKeys[ga])
	if err != nil {
		t.Fatalf("decrypt from second load: %v", err)
	}
	if !bytes.Equal(d1, d2) || !bytes.Equal(d1, plainGroupKey) {
		t.Fatalf("idempotence violated: %x vs %x (want %x)", d1, d2, plainGroupKey)
	}
}

func TestDecryptPasswordStripsPreambleAndTrailer(t *testing.T) {
	k := &Keyring{}
	createdSum := sha256.Sum256([]byte("2024-01-01T00:00:00"))
	copy(k.createdHash[:], createdSum[:16])

	password := "hunter2"
	passwordHash := pbkdf2.Key([]byte(password), []byte(pbkdfSalt), pbkdfIterations, pbkdfKeyLen, sha256.New)

	actual := []byte("abcde")
	padLen := byte(3)
	plain := append(bytes.Repeat([]byte{0x99}, 8), actual...)
	plain = append(plain, bytes.Repeat([]byte{padLen}, int(padLen))...)

	ciphertext := aesCBCEncrypt(t, passwordHash, k.createdHash[:], plain)

	got, err := k.DecryptPassword(password, ciphertext)
	if err != nil {
		t.Fatalf("DecryptPassword: %v", err)
	}
	if !bytes.Equal(got, actual) {
		t.Fatalf("got %q, want %q", got, actual)
	}
}

func TestDecryptKeyRejectsBadCiphertextLength(t *testing.T) {
	k := &Keyring{}
	if _, err := k.DecryptKey("pw", []byte{0x01, 0x02, 0x03}); !errors.Is(err, knx.ErrFrameFormat) {
		t.Fatalf("expected ErrFrameFormat, got %v", err)
	}
}
