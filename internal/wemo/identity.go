package wemo

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// namespace scopes the name-based UUIDs of virtual devices.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/muurk/smartrelay/wemo"))

// Serial returns the 14 character serial number of the device called name.
func Serial(name string) string {
	id := uuid.NewSHA1(namespace, []byte(strings.ToLower(strings.TrimSpace(name))))
	return strings.ToUpper(hex.EncodeToString(id[:]))[:14]
}

// UDN returns the unique device name announced for name.
func UDN(name string) string {
	return "uuid:Socket-1_0-" + Serial(name)
}
