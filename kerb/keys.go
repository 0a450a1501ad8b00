package kerb

import (
	"fmt"
	"time"

	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/types"
)

// Principal prefixes of the server keys in a keytab. The realm follows the
// slash.
const (
	TGSPrincipalPrefix = "krbtgt/"
	SSPrincipalPrefix  = "auth/"
)

// ServerKeys are the private keys of the TGS and the SS. They never leave
// the server.
type ServerKeys struct {
	TGS []byte
	SS  []byte
}

// GenerateServerKeys returns random keys. Tickets issued under them do not
// survive a restart.
func GenerateServerKeys() (*ServerKeys, error) {
	tgs, err := GenerateSessionKey()
	if err != nil {
		return nil, err
	}
	ss, err := GenerateSessionKey()
	if err != nil {
		return nil, err
	}
	return &ServerKeys{TGS: tgs, SS: ss}, nil
}

// NewServerKeytab builds a keytab holding aes256-cts-hmac-sha1-96 keys for
// krbtgt/REALM and auth/REALM derived from the two secrets.
func NewServerKeytab(realm, tgsSecret, ssSecret string, kvno uint8) (*keytab.Keytab, error) {
	if tgsSecret == ssSecret {
		return nil, fmt.Errorf("TGS and SS secrets must differ")
	}
	kt := keytab.New()
	now := time.Now()
	if err := kt.AddEntry(TGSPrincipalPrefix+realm, realm, tgsSecret, now, kvno, etypeID.AES256_CTS_HMAC_SHA1_96); err != nil {
		return nil, fmt.Errorf("add TGS key: %w", err)
	}
	if err := kt.AddEntry(SSPrincipalPrefix+realm, realm, ssSecret, now, kvno, etypeID.AES256_CTS_HMAC_SHA1_96); err != nil {
		return nil, fmt.Errorf("add SS key: %w", err)
	}
	return kt, nil
}

// ServerKeysFromKeytab reads the newest TGS and SS keys for realm.
func ServerKeysFromKeytab(kt *keytab.Keytab, realm string) (*ServerKeys, error) {
	tgs, err := keytabKey(kt, TGSPrincipalPrefix+realm, realm)
	if err != nil {
		return nil, err
	}
	ss, err := keytabKey(kt, SSPrincipalPrefix+realm, realm)
	if err != nil {
		return nil, err
	}
	return &ServerKeys{TGS: tgs, SS: ss}, nil
}

// LoadServerKeys reads a keytab file.
func LoadServerKeys(path, realm string) (*ServerKeys, error) {
	kt, err := keytab.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load keytab: %w", err)
	}
	return ServerKeysFromKeytab(kt, realm)
}

func keytabKey(kt *keytab.Keytab, spn, realm string) ([]byte, error) {
	pn := types.NewPrincipalName(nametype.KRB_NT_SRV_INST, spn)
	key, _, err := kt.GetEncryptionKey(pn, realm, 0, etypeID.AES256_CTS_HMAC_SHA1_96)
	if err != nil {
		return nil, fmt.Errorf("keytab %s@%s: %w", spn, realm, err)
	}
	if len(key.KeyValue) != KeySize {
		return nil, fmt.Errorf("keytab %s@%s: key is %d bytes, want %d", spn, realm, len(key.KeyValue), KeySize)
	}
	return key.KeyValue, nil
}

// Wipe zeroes both keys.
func (k *ServerKeys) Wipe() {
	if k == nil {
		return
	}
	Wipe(k.TGS)
	Wipe(k.SS)
}
