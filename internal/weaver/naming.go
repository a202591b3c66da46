package weaver

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/covenant/internal/ir"
)

// PublicName derives a wrapper's visible name from an internal name: one
// leading underscore is stripped, then the first letter is upper-cased.
//
//	deposit    -> Deposit
//	_deposit   -> Deposit
//	newAccount -> NewAccount
func PublicName(internal string) string {
	name := strings.TrimPrefix(internal, "_")
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// publicNameOf honors an explicit override before falling back to PublicName.
func publicNameOf(c *ir.ContractedCallable) string {
	if c.PublicName != "" {
		return c.PublicName
	}
	return PublicName(c.Name)
}

// nameTable detects public-name collisions within one namespace (a type's
// members, or the set of free functions).
type nameTable struct {
	owner map[string]string // public name -> internal name that claimed it
}

func newNameTable() *nameTable {
	return &nameTable{owner: make(map[string]string)}
}

// claim records that internal is reachable as public. Returns the earlier
// claimant when the name is taken.
func (n *nameTable) claim(public, internal string) (string, bool) {
	if prev, taken := n.owner[public]; taken {
		return prev, false
	}
	n.owner[public] = internal
	return "", true
}
