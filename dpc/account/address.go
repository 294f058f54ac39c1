package account

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

const addrVer = 0x01

// EncodeAddress renders an address payload as a "pv"-prefixed base58check
// string.
func EncodeAddress(payload []byte) string {
	return "pv" + base58.CheckEncode(payload, addrVer)
}

func DecodeAddress(addr string) ([]byte, error) {
	if !strings.HasPrefix(addr, "pv") {
		return nil, fmt.Errorf("wrong prefix: got(%s)", addr)
	}
	bz, _ver, err := base58.CheckDecode(addr[2:])
	if err != nil {
		return nil, err
	}
	if _ver != addrVer {
		return nil, fmt.Errorf("wrong version: expected(%d), got(%d)", addrVer, _ver)
	}
	return bz, nil
}

// ParseAddress decodes a textual address back into a group element.
func ParseAddress(addr string) (Address, error) {
	bz, err := DecodeAddress(addr)
	if err != nil {
		return Address{}, err
	}
	var a Address
	if err := a.SetBytes(bz); err != nil {
		return Address{}, err
	}
	return a, nil
}
