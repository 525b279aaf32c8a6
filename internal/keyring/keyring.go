// Package keyring loads PGP keyrings and verifies the two kinds of
// signatures the synchronizer trusts: controller requests and repository
// metadata.
package keyring

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/pkg/errors"
)

// ErrBadSignature is returned whenever a signature fails to validate against
// every key in the relevant keyring. It is wrapped with the underlying
// verification error's message, and callers can match on it with errors.Is.
var ErrBadSignature = errors.New("signature verification failed")

// Keyring is a loaded set of OpenPGP public keys used to check one kind of
// signature (request or metadata). Both kinds are represented by the same
// type; callers keep the two instances separate.
type Keyring struct {
	entities openpgp.EntityList
}

// Load reads every file in dir and merges their keys into a single keyring.
// Files may be ASCII-armored or binary; an unreadable directory is fatal, a
// file that is neither a valid binary nor armored keyring is fatal too -
// unlike metadata index parsing, keyring load failures leave no ambiguity to
// recover from.
func Load(dir string) (*Keyring, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading keyring directory %s", dir)
	}

	var all openpgp.EntityList
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		keys, err := loadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "loading key file %s", path)
		}
		all = append(all, keys...)
	}
	if len(all) == 0 {
		return nil, errors.Errorf("no keys found under %s", dir)
	}
	return &Keyring{entities: all}, nil
}

func loadFile(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	if looksArmored(data) {
		return openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	}
	return openpgp.ReadKeyRing(bytes.NewReader(data))
}

func looksArmored(data []byte) bool {
	return bytes.Contains(data[:min(64, len(data))], []byte("-----BEGIN PGP"))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// VerifyRequest checks a detached signature over the decimal rendering of a
// timestamp, as produced by the controller. At least one key in the keyring
// must validate the signature; partial success is not a thing.
func (k *Keyring) VerifyRequest(timestamp int64, armoredSig string) error {
	message := fmt.Sprintf("%d", timestamp)
	return k.verifyDetached(strings.NewReader(message), strings.NewReader(armoredSig))
}

// VerifyMetadata checks a detached signature over arbitrary metadata bytes
// (typically a Release file) against the metadata keyring.
func (k *Keyring) VerifyMetadata(body, armoredSig []byte) error {
	return k.verifyDetached(bytes.NewReader(body), bytes.NewReader(armoredSig))
}

func (k *Keyring) verifyDetached(signed, sig io.Reader) error {
	sigData, err := io.ReadAll(sig)
	if err != nil {
		return errors.Wrap(err, "reading detached signature")
	}
	block, err := armor.Decode(bytes.NewReader(sigData))
	if err != nil {
		// Some callers hand us a raw (non-armored) detached signature packet.
		if _, err2 := openpgp.CheckDetachedSignature(k.entities, signed, bytes.NewReader(sigData)); err2 != nil {
			return errors.Wrap(ErrBadSignature, err2.Error())
		}
		return nil
	}
	if _, err := openpgp.CheckDetachedSignature(k.entities, signed, block.Body); err != nil {
		return errors.Wrap(ErrBadSignature, err.Error())
	}
	return nil
}

// SplitInRelease splits a cleartext-signed document (an InRelease file) into
// its signed body and the detached armored signature block that covers it.
// Leading and trailing whitespace around the body are preserved verbatim,
// since the signature was computed over exactly those bytes.
func SplitInRelease(text []byte) (body, sig []byte, err error) {
	block, rest := clearsign.Decode(text)
	if block == nil {
		return nil, nil, errors.New("not a cleartext-signed document")
	}
	_ = rest

	var sigBuf bytes.Buffer
	w, err := armor.Encode(&sigBuf, openpgp.SignatureType, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "re-armoring detached signature")
	}
	if _, err := io.Copy(w, block.ArmoredSignature.Body); err != nil {
		return nil, nil, errors.Wrap(err, "copying detached signature body")
	}
	if err := w.Close(); err != nil {
		return nil, nil, errors.Wrap(err, "closing armor writer")
	}

	return block.Bytes, sigBuf.Bytes(), nil
}
